package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"tweetsmith/internal/category"
	"tweetsmith/internal/config"
	"tweetsmith/internal/llm"
	"tweetsmith/internal/model"
)

type reply struct {
	text string
	err  error
}

type fakeLLM struct {
	replies []reply
	reqs    []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.reqs = append(f.reqs, req)
	if len(f.replies) == 0 {
		return "", errors.New("no more replies")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.text, r.err
}

type fakeHistory struct {
	records []model.HistoryRecord
	calls   int
	err     error
}

func (f *fakeHistory) Recent(context.Context, int) ([]model.HistoryRecord, error) {
	f.calls++
	return f.records, f.err
}

func newGenerator(t *testing.T, p llm.Provider, h HistorySource, gate *Gate) *Generator {
	t.Helper()
	table, err := category.NewTable(category.Defaults())
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	return New(p, h, table, Options{
		MaxAttempts:  3,
		SystemPrompt: config.DefaultSystemPrompt,
		Gate:         gate,
		Logger:       log,
		Now:          func() time.Time { return time.Date(2025, 1, 1, 8, 30, 0, 0, time.UTC) },
	})
}

func TestGenerateNormalizes(t *testing.T) {
	p := &fakeLLM{replies: []reply{{text: "1. \"Keep going,\" even when #Monday   feels long"}}}
	g := newGenerator(t, p, &fakeHistory{}, nil)
	item, err := g.Generate(context.Background(), "MOTIVATIONAL")
	require.NoError(t, err)
	require.Equal(t, "Keep going, even when feels long", item.Content)
	require.Equal(t, model.Category("MOTIVATIONAL"), item.Category)
	require.False(t, item.CreatedAt.IsZero())
	require.Contains(t, p.reqs[0].System, "specializing in motivational content")
}

func TestGenerateTruncatesLongOutput(t *testing.T) {
	p := &fakeLLM{replies: []reply{{text: strings.Repeat("word ", 100)}}}
	g := newGenerator(t, p, &fakeHistory{}, nil)
	item, err := g.Generate(context.Background(), "JOKE")
	require.NoError(t, err)
	require.LessOrEqual(t, len([]rune(item.Content)), model.MaxContentLength)
	require.True(t, strings.HasSuffix(item.Content, "..."))
}

func TestGenerateRejectsDuplicateOfHistory(t *testing.T) {
	h := &fakeHistory{records: []model.HistoryRecord{{Content: "the journey of life is filled with philosophical truths"}}}
	p := &fakeLLM{replies: []reply{
		{text: "the journey of life is full of philosophical truths"},
		{text: "a quiet river teaches patience to the stones"},
	}}
	g := newGenerator(t, p, h, nil)
	item, err := g.Generate(context.Background(), "INSPIRATIONAL")
	require.NoError(t, err)
	require.Equal(t, "a quiet river teaches patience to the stones", item.Content)
	require.Len(t, p.reqs, 2)
	require.Equal(t, 1, h.calls, "history is loaded once per call")
}

func TestGenerateAvoidingSiblings(t *testing.T) {
	p := &fakeLLM{replies: []reply{
		{text: "coffee first then the world"},
		{text: "coffee first then the world please"},
		{text: "sunrise paints the street gold"},
	}}
	g := newGenerator(t, p, &fakeHistory{}, nil)
	item, err := g.GenerateAvoiding(context.Background(), "POEM", []string{"coffee first then the world"})
	require.NoError(t, err)
	require.Equal(t, "sunrise paints the street gold", item.Content)
}

func TestGenerateExhaustedCarriesReasons(t *testing.T) {
	p := &fakeLLM{replies: []reply{
		{text: "\"\" #tag"},
		{err: model.ErrTransient},
		{text: "   "},
	}}
	g := newGenerator(t, p, &fakeHistory{}, nil)
	_, err := g.Generate(context.Background(), "JOKE")
	require.ErrorIs(t, err, model.ErrGenerationExhausted)
	var ex *model.ExhaustedError
	require.ErrorAs(t, err, &ex)
	require.Len(t, ex.Rejections, 3)
	require.Equal(t, "empty after normalization", ex.Rejections[0].Reason)
	require.Len(t, p.reqs, 3)
}

func TestGenerateAbortsOnAuth(t *testing.T) {
	p := &fakeLLM{replies: []reply{{err: model.ErrAuth}, {text: "never reached"}}}
	g := newGenerator(t, p, &fakeHistory{}, nil)
	_, err := g.Generate(context.Background(), "JOKE")
	require.ErrorIs(t, err, model.ErrAuth)
	require.Len(t, p.reqs, 1)
}

func TestGenerateHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &fakeLLM{}
	g := newGenerator(t, p, &fakeHistory{}, nil)
	_, err := g.Generate(ctx, "JOKE")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, p.reqs)
}

func TestGenerateHistoryFailure(t *testing.T) {
	g := newGenerator(t, &fakeLLM{}, &fakeHistory{err: model.Storage("load history", errors.New("io"))}, nil)
	_, err := g.Generate(context.Background(), "JOKE")
	require.ErrorIs(t, err, model.ErrStorage)
}

func TestGenerateUnknownCategory(t *testing.T) {
	g := newGenerator(t, &fakeLLM{}, &fakeHistory{}, nil)
	_, err := g.Generate(context.Background(), "LIMERICK")
	require.Error(t, err)
}

func TestGenerateAppliesGate(t *testing.T) {
	gate, err := NewGate(config.Default().Creativity)
	require.NoError(t, err)
	p := &fakeLLM{replies: []reply{
		{text: "Why did the scarecrow win an award? Outstanding in his field."},
	}}
	g := newGenerator(t, p, &fakeHistory{}, gate)
	item, err := g.Generate(context.Background(), "JOKE")
	require.NoError(t, err)
	require.Contains(t, item.Content, "scarecrow")

	p = &fakeLLM{replies: []reply{
		{text: "My cat sleeps all day long"},
		{text: "My dog naps in the sun"},
		{text: "My fish swims in circles"},
	}}
	g = newGenerator(t, p, &fakeHistory{}, gate)
	_, err = g.Generate(context.Background(), "JOKE")
	require.ErrorIs(t, err, model.ErrGenerationExhausted)
}
