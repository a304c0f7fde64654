// Package generate produces one validated, non-duplicate item per call.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tweetsmith/internal/category"
	"tweetsmith/internal/llm"
	"tweetsmith/internal/logging"
	"tweetsmith/internal/metrics"
	"tweetsmith/internal/model"
	"tweetsmith/internal/similarity"
	"tweetsmith/internal/util"
)

// HistorySource lists recently published records.
type HistorySource interface {
	Recent(ctx context.Context, windowDays int) ([]model.HistoryRecord, error)
}

// Options tunes a Generator. Zero values fall back to defaults.
type Options struct {
	MaxAttempts       int
	Threshold         float64
	HistoryWindowDays int
	SystemPrompt      string
	Temperature       float64
	MaxTokens         int

	Scorer similarity.Scorer
	Gate   *Gate
	Logger logging.Logger
	Now    func() time.Time
}

const (
	defaultMaxAttempts = 5
	defaultWindowDays  = 90
)

// Generator asks the LLM for candidates until one passes normalization,
// the similarity check against history and the creativity gate.
type Generator struct {
	provider llm.Provider
	history  HistorySource
	table    *category.Table
	opts     Options
}

func New(provider llm.Provider, history HistorySource, table *category.Table, opts Options) *Generator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Threshold <= 0 {
		opts.Threshold = similarity.DefaultThreshold
	}
	if opts.HistoryWindowDays <= 0 {
		opts.HistoryWindowDays = defaultWindowDays
	}
	if opts.Scorer == nil {
		opts.Scorer = similarity.ScorerFunc(similarity.JaccardScore)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Generator{provider: provider, history: history, table: table, opts: opts}
}

// Generate returns one acceptable item of category c.
func (g *Generator) Generate(ctx context.Context, c model.Category) (model.Item, error) {
	return g.GenerateAvoiding(ctx, c, nil)
}

// GenerateAvoiding is Generate that also rejects candidates similar to any text in avoid,
// typically items already produced for the same schedule.
func (g *Generator) GenerateAvoiding(ctx context.Context, c model.Category, avoid []string) (model.Item, error) {
	def, ok := g.table.Lookup(c)
	if !ok {
		return model.Item{}, fmt.Errorf("unknown category %q", c)
	}
	records, err := g.history.Recent(ctx, g.opts.HistoryWindowDays)
	if err != nil {
		return model.Item{}, err
	}
	corpus := make([]string, 0, len(records)+len(avoid))
	for _, r := range records {
		corpus = append(corpus, r.Content)
	}
	corpus = append(corpus, avoid...)

	log := g.opts.Logger.WithField("category", c)
	exhausted := &model.ExhaustedError{Category: c}
	reject := func(attempt int, label, reason, candidate string) {
		metrics.IncRejection(label)
		exhausted.Rejections = append(exhausted.Rejections, model.Rejection{Attempt: attempt, Reason: reason, Candidate: candidate})
		log.WithFields(logrus.Fields{"attempt": attempt, "reason": reason}).Info("generate_rejected")
	}

	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return model.Item{}, err
		}
		metrics.GenerationAttempts.WithLabelValues(string(c)).Inc()
		raw, err := g.provider.Complete(ctx, g.request(def))
		if err != nil {
			if errors.Is(err, model.ErrAuth) || ctx.Err() != nil {
				return model.Item{}, err
			}
			reject(attempt, "service", err.Error(), "")
			continue
		}
		text := util.NormalizeContent(raw, model.MaxContentLength)
		if text == "" {
			reject(attempt, "empty", "empty after normalization", "")
			continue
		}
		if m, dup := similarity.FindDuplicate(g.opts.Scorer, text, corpus, g.opts.Threshold); dup {
			reject(attempt, "duplicate", fmt.Sprintf("%v: score %.2f against %q", model.ErrDuplicateContent, m.Score, m.Text), text)
			continue
		}
		if err := g.opts.Gate.Check(text, def); err != nil {
			reject(attempt, "creativity", err.Error(), text)
			continue
		}
		log.WithFields(logrus.Fields{"attempt": attempt, "length": len([]rune(text))}).Info("generate_ok")
		return model.Item{Content: text, Category: c, CreatedAt: g.opts.Now().UTC()}, nil
	}
	metrics.GenerationExhausted.Inc()
	return model.Item{}, exhausted
}

func (g *Generator) request(def category.Definition) llm.Request {
	return llm.Request{
		System:      strings.ReplaceAll(g.opts.SystemPrompt, "%s", strings.ToLower(string(def.Name))),
		Prompt:      def.Prompt,
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
	}
}
