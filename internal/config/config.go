package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tweetsmith/internal/category"
)

// Config is the application's configuration model.
// It captures credentials, generation policy, posting policy, storage and sessions.
type Config struct {
	Credentials CredentialsConfig        `yaml:"credentials"`
	X           XConfig                  `yaml:"x"`
	LLM         LLMConfig                `yaml:"llm"`
	Generation  GenerationConfig         `yaml:"generation"`
	Creativity  CreativityConfig         `yaml:"creativity"`
	Categories  []category.Definition    `yaml:"categories"`
	Posting     PostingConfig            `yaml:"posting"`
	History     HistoryConfig            `yaml:"history"`
	Storage     StorageConfig            `yaml:"storage"`
	Sessions    map[string]SessionConfig `yaml:"sessions"`
	Metrics     MetricsConfig            `yaml:"metrics"`
	Log         LogConfig                `yaml:"log"`
}

type CredentialsConfig struct {
	// OAuth1.0a user-context credentials for posting. If empty, read X_* (or TWITTER_*) env vars.
	ConsumerKey    string `yaml:"consumerKey"`
	ConsumerSecret string `yaml:"consumerSecret"`
	AccessToken    string `yaml:"accessToken"`
	AccessSecret   string `yaml:"accessSecret"`
	// OAuth2 user token; when set it is used instead of OAuth1. If empty, read X_USER_TOKEN
	UserToken string `yaml:"userToken"`
}

type XConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
	// Client-side pacing of API calls
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// Retries for idempotent reads (credential probe); publish is never retried here
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	Model    string `yaml:"model"`
	// If empty, read from env OPENAI_API_KEY / ANTHROPIC_API_KEY / LLM_API_KEY
	APIKey       string        `yaml:"apiKey"`
	APIURL       string        `yaml:"apiURL"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"maxTokens"`
	Timeout      time.Duration `yaml:"timeout"`
	// Transport-level retries for connection errors and 5xx
	MaxRetries int `yaml:"maxRetries"`
}

type SimilarityConfig struct {
	Algorithm string  `yaml:"algorithm"` // "jaccard" or "jarowinkler"
	Threshold float64 `yaml:"threshold"`
}

type GenerationConfig struct {
	MaxAttempts       int              `yaml:"maxAttempts"`
	HistoryWindowDays int              `yaml:"historyWindowDays"`
	Similarity        SimilarityConfig `yaml:"similarity"`
}

type CreativityConfig struct {
	Enabled        bool     `yaml:"enabled"`
	BannedPhrases  []string `yaml:"bannedPhrases"`
	BannedOpenings []string `yaml:"bannedOpenings"` // regular expressions matched against the first sentence
	// Reject when this many sentences start with the same word (0 disables)
	MaxRepeatedOpeners int `yaml:"maxRepeatedOpeners"`
}

type PostingConfig struct {
	MaxRetries        int           `yaml:"maxRetries"`
	BaseBackoff       time.Duration `yaml:"baseBackoff"`
	RateLimitCooldown time.Duration `yaml:"rateLimitCooldown"`
	SafetyMargin      int           `yaml:"safetyMargin"`
	ResetBuffer       time.Duration `yaml:"resetBuffer"`
}

type HistoryConfig struct {
	RetentionDays int `yaml:"retentionDays"`
	BackupKeep    int `yaml:"backupKeep"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "file"
	DBPath string `yaml:"dbPath"`
	Dir    string `yaml:"dir"`
}

// SessionConfig describes a named batch of slots and its allowed time window.
type SessionConfig struct {
	Start           string        `yaml:"start"` // HH:MM in Timezone
	Window          time.Duration `yaml:"window"`
	Timezone        string        `yaml:"timezone"`
	Slots           int           `yaml:"slots"`
	IntervalMinutes int           `yaml:"intervalMinutes"`
}

type MetricsConfig struct {
	Addr        string `yaml:"addr"`
	PushGateway string `yaml:"pushGateway"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// DefaultSystemPrompt is the fixed instruction sent with every generation request.
// %s is replaced by the lower-cased category name.
const DefaultSystemPrompt = "You are a tweet generator specializing in %s content. Create engaging and authentic tweets. Do not use quotes, hashtags, or emojis. Keep it simple and direct."

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		X: XConfig{
			BaseURL:     "https://api.twitter.com/2",
			Timeout:     15 * time.Second,
			RPS:         2,
			Burst:       10,
			MaxAttempts: 5,
			BaseBackoff: 500 * time.Millisecond,
		},
		LLM: LLMConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			SystemPrompt: DefaultSystemPrompt,
			Temperature:  0.9,
			MaxTokens:    150,
			Timeout:      60 * time.Second,
			MaxRetries:   2,
		},
		Generation: GenerationConfig{
			MaxAttempts:       5,
			HistoryWindowDays: 90,
			Similarity:        SimilarityConfig{Algorithm: "jaccard", Threshold: 0.7},
		},
		Creativity: CreativityConfig{
			Enabled: true,
			BannedPhrases: []string{
				"you can do it", "never give up", "believe in yourself", "follow your dreams",
				"dream big", "the sky is the limit", "everything happens for a reason", "life is a journey",
			},
			BannedOpenings:     []string{`^embrace\b`, `^remember\b`, `^in a world\b`, `^life is\b`},
			MaxRepeatedOpeners: 3,
		},
		Categories: category.Defaults(),
		Posting: PostingConfig{
			MaxRetries:        3,
			BaseBackoff:       5 * time.Second,
			RateLimitCooldown: 15 * time.Minute,
			SafetyMargin:      2,
			ResetBuffer:       5 * time.Second,
		},
		History: HistoryConfig{RetentionDays: 90, BackupKeep: 10},
		Storage: StorageConfig{Driver: "sqlite", DBPath: "./tweetsmith.db", Dir: "./data"},
		Sessions: map[string]SessionConfig{
			"morning": {Start: "08:30", Window: 6 * time.Hour, Timezone: "Asia/Kolkata", Slots: 4, IntervalMinutes: 30},
			"evening": {Start: "18:00", Window: 4 * time.Hour, Timezone: "Asia/Kolkata", Slots: 3, IntervalMinutes: 45},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// LoadEnv loads variables from .env files in the working directory, if present.
func LoadEnv() []string {
	var loaded []string
	for _, f := range []string{".env", ".env.local"} {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	return loaded
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	fill := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	fill(&c.Credentials.ConsumerKey, "X_CONSUMER_KEY", "TWITTER_API_KEY")
	fill(&c.Credentials.ConsumerSecret, "X_CONSUMER_SECRET", "TWITTER_API_SECRET")
	fill(&c.Credentials.AccessToken, "X_ACCESS_TOKEN", "TWITTER_ACCESS_TOKEN")
	fill(&c.Credentials.AccessSecret, "X_ACCESS_SECRET", "TWITTER_ACCESS_TOKEN_SECRET")
	fill(&c.Credentials.UserToken, "X_USER_TOKEN")
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic":
		fill(&c.LLM.APIKey, "ANTHROPIC_API_KEY", "LLM_API_KEY")
	default:
		fill(&c.LLM.APIKey, "OPENAI_API_KEY", "LLM_API_KEY")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	// BATCH_START_TIME=HHMM moves every session start.
	if v := os.Getenv("BATCH_START_TIME"); len(v) == 4 {
		for name, s := range c.Sessions {
			s.Start = v[:2] + ":" + v[2:]
			c.Sessions[name] = s
		}
	}
}

// Load reads YAML config from path on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, cfg.Validate()
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

var (
	sessionName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	clock       = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// ValidSessionName reports whether name is usable as a session label and storage key.
func ValidSessionName(name string) bool { return sessionName.MatchString(name) }

// Validate checks ranges and cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Generation.MaxAttempts < 1 || c.Generation.MaxAttempts > 13 {
		errs = append(errs, fmt.Errorf("generation.maxAttempts must be within 1..13, got %d", c.Generation.MaxAttempts))
	}
	if t := c.Generation.Similarity.Threshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("generation.similarity.threshold must be within (0,1], got %v", t))
	}
	if c.Generation.HistoryWindowDays < 1 {
		errs = append(errs, errors.New("generation.historyWindowDays must be positive"))
	}
	if c.History.RetentionDays < 1 {
		errs = append(errs, errors.New("history.retentionDays must be positive"))
	}
	if c.History.BackupKeep < 0 {
		errs = append(errs, errors.New("history.backupKeep must not be negative"))
	}
	if c.Posting.MaxRetries < 0 {
		errs = append(errs, errors.New("posting.maxRetries must not be negative"))
	}
	if c.Posting.SafetyMargin < 0 {
		errs = append(errs, errors.New("posting.safetyMargin must not be negative"))
	}
	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("categories must not be empty"))
	} else if _, err := category.NewTable(c.Categories); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Driver {
	case "sqlite", "file":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite or file, got %q", c.Storage.Driver))
	}
	for name, s := range c.Sessions {
		if !ValidSessionName(name) {
			errs = append(errs, fmt.Errorf("session %q: invalid name", name))
		}
		if s.Start != "" && !clock.MatchString(s.Start) {
			errs = append(errs, fmt.Errorf("session %s: start must be HH:MM, got %q", name, s.Start))
		}
		if s.Timezone != "" {
			if _, err := time.LoadLocation(s.Timezone); err != nil {
				errs = append(errs, fmt.Errorf("session %s: %w", name, err))
			}
		}
		if s.Slots < 0 || s.IntervalMinutes < 0 {
			errs = append(errs, fmt.Errorf("session %s: slots and intervalMinutes must not be negative", name))
		}
	}
	return errors.Join(errs...)
}
