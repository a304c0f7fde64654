package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tweetsmith.yaml")
	cfg := Default()
	cfg.Generation.MaxAttempts = 7
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, got.Generation.MaxAttempts)
	require.Equal(t, cfg.Posting.RateLimitCooldown, got.Posting.RateLimitCooldown)
	require.Len(t, got.Categories, len(cfg.Categories))
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	body := `
generation:
  maxAttempts: 3
  similarity:
    algorithm: jarowinkler
    threshold: 0.6
posting:
  baseBackoff: 2s
storage:
  driver: file
  dir: /tmp/x
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Generation.MaxAttempts)
	require.Equal(t, "jarowinkler", cfg.Generation.Similarity.Algorithm)
	require.Equal(t, 0.6, cfg.Generation.Similarity.Threshold)
	require.Equal(t, 2*time.Second, cfg.Posting.BaseBackoff)
	require.Equal(t, 15*time.Minute, cfg.Posting.RateLimitCooldown)
	require.Equal(t, 90, cfg.History.RetentionDays)
	require.Equal(t, "file", cfg.Storage.Driver)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Generation.MaxAttempts = 20
	cfg.Generation.Similarity.Threshold = 1.5
	cfg.Storage.Driver = "mongo"
	cfg.Sessions["bad name"] = SessionConfig{Start: "25:00"}
	err := cfg.Validate()
	require.Error(t, err)
	for _, part := range []string{"maxAttempts", "threshold", "storage.driver", "invalid name", "HH:MM"} {
		require.ErrorContains(t, err, part)
	}
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("X_CONSUMER_KEY", "")
	t.Setenv("TWITTER_API_KEY", "legacy-key")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("BATCH_START_TIME", "0715")
	cfg := Default()
	cfg.Credentials.AccessToken = "explicit"
	t.Setenv("X_ACCESS_TOKEN", "from-env")
	cfg.ResolveEnv()
	require.Equal(t, "legacy-key", cfg.Credentials.ConsumerKey)
	require.Equal(t, "explicit", cfg.Credentials.AccessToken)
	require.Equal(t, "sk-test", cfg.LLM.APIKey)
	require.Equal(t, "07:15", cfg.Sessions["morning"].Start)
}

func TestValidSessionName(t *testing.T) {
	require.True(t, ValidSessionName("morning-2"))
	require.False(t, ValidSessionName("../etc"))
	require.False(t, ValidSessionName(""))
}
