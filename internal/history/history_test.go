package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"tweetsmith/internal/model"
)

type memBackend struct {
	records []model.HistoryRecord
	saved   bool
	backups [][]model.HistoryRecord
	loadErr error
	saveErr error
	saveCnt int
}

func (m *memBackend) LoadHistory(context.Context) ([]model.HistoryRecord, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if !m.saved {
		return nil, model.ErrNotFound
	}
	return append([]model.HistoryRecord(nil), m.records...), nil
}

func (m *memBackend) SaveHistory(_ context.Context, records []model.HistoryRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saveCnt++
	m.saved = true
	m.records = append([]model.HistoryRecord(nil), records...)
	return nil
}

func (m *memBackend) BackupHistory(_ context.Context, records []model.HistoryRecord, keep int) error {
	m.backups = append(m.backups, records)
	if len(m.backups) > keep {
		m.backups = m.backups[len(m.backups)-keep:]
	}
	return nil
}

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newStore(b Backend) *Store {
	log, _ := test.NewNullLogger()
	return New(b, Options{
		BackupKeep:    2,
		ValidCategory: func(c model.Category) bool { return c == "POEM" || c == "JOKE" },
		Now:           func() time.Time { return now },
		Logger:        log,
	})
}

func rec(content string, age time.Duration) model.HistoryRecord {
	return model.HistoryRecord{Content: content, Category: "POEM", CreatedAt: now.Add(-age), Session: "morning"}
}

func TestFirstAccessIsEmpty(t *testing.T) {
	s := newStore(&memBackend{})
	got, err := s.Recent(context.Background(), 90)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestAppendThenRecentContainsContent(t *testing.T) {
	b := &memBackend{}
	s := newStore(b)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, rec("rain on the tin roof, a drum for the sleepless", 0)))

	got, err := s.Recent(ctx, 90)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "rain on the tin roof, a drum for the sleepless", got[0].Content)
	require.NotEmpty(t, got[0].ID)
	require.Empty(t, b.backups, "nothing to back up on first write")
}

func TestAppendPrunesOldRecords(t *testing.T) {
	b := &memBackend{saved: true, records: []model.HistoryRecord{
		rec("ancient", 91*24*time.Hour),
		rec("fresh", 24*time.Hour),
	}}
	s := newStore(b)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, rec("new", 0)))

	require.Len(t, b.records, 2)
	for _, r := range b.records {
		require.False(t, r.CreatedAt.Before(now.Add(-90*24*time.Hour)), r.Content)
	}
	require.Len(t, b.backups, 1)
	require.Len(t, b.backups[0], 2, "backup holds the prior state")
}

func TestRecentWindow(t *testing.T) {
	b := &memBackend{saved: true, records: []model.HistoryRecord{
		rec("a", 10*24*time.Hour),
		rec("b", 40*24*time.Hour),
	}}
	s := newStore(b)
	got, err := s.Recent(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].Content)
}

func TestBackupsKeepNewest(t *testing.T) {
	b := &memBackend{}
	s := newStore(b)
	ctx := context.Background()
	for _, c := range []string{"one", "two", "three", "four"} {
		require.NoError(t, s.Append(ctx, rec(c, 0)))
	}
	require.Len(t, b.backups, 2)
	require.Len(t, b.backups[1], 3)
}

func TestAppendValidation(t *testing.T) {
	s := newStore(&memBackend{})
	ctx := context.Background()
	long := make([]rune, model.MaxContentLength+1)
	for i := range long {
		long[i] = 'x'
	}
	bad := []model.HistoryRecord{
		rec("", 0),
		rec(string(long), 0),
		{Content: "ok", Category: "GEETA", CreatedAt: now},
		{Content: "ok", Category: "POEM"},
	}
	for _, r := range bad {
		require.ErrorIs(t, s.Append(ctx, r), model.ErrInvalidRecord)
	}
}

func TestBackendFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	s := newStore(&memBackend{loadErr: errors.New("io")})
	_, err := s.Recent(ctx, 90)
	require.ErrorIs(t, err, model.ErrStorage)

	s = newStore(&memBackend{saveErr: errors.New("disk full")})
	require.ErrorIs(t, s.Append(ctx, rec("x", 0)), model.ErrStorage)
}

func TestPrune(t *testing.T) {
	b := &memBackend{saved: true, records: []model.HistoryRecord{
		rec("old", 100*24*time.Hour),
		rec("mid", 50*24*time.Hour),
		rec("new", time.Hour),
	}}
	s := newStore(b)
	n, err := s.Prune(context.Background(), 30)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, b.records, 1)

	n, err = s.Prune(context.Background(), 30)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 1, b.saveCnt, "no write when nothing to drop")
}
