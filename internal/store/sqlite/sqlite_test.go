package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tweetsmith/internal/model"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCursors(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	v, err := db.LoadCursor(ctx, "x:ratelimit:tweets")
	require.NoError(t, err)
	require.Empty(t, v)
	require.NoError(t, db.SaveCursor(ctx, "x:ratelimit:tweets", "17"))
	require.NoError(t, db.SaveCursor(ctx, "x:ratelimit:tweets", "16"))
	v, err = db.LoadCursor(ctx, "x:ratelimit:tweets")
	require.NoError(t, err)
	require.Equal(t, "16", v)
}

func TestHistoryRoundTrip(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	_, err := db.LoadHistory(ctx)
	require.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, db.SaveHistory(ctx, nil))
	got, err := db.LoadHistory(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	at := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC)
	recs := []model.HistoryRecord{
		{ID: "a", Content: "first", Category: "POEM", CreatedAt: at, Session: "morning", PostID: "1"},
		{ID: "b", Content: "second", Category: "JOKE", CreatedAt: at.Add(time.Minute), Session: "evening"},
	}
	require.NoError(t, db.SaveHistory(ctx, recs))
	got, err = db.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Content)
	require.True(t, got[0].CreatedAt.Equal(at))
	require.Equal(t, "1", got[0].PostID)

	require.NoError(t, db.SaveHistory(ctx, recs[1:]))
	got, err = db.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].ID)
}

func TestBackupsRetainNewest(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		recs := make([]model.HistoryRecord, i+1)
		require.NoError(t, db.BackupHistory(ctx, recs, 3))
	}
	backups, err := db.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 3)
	require.Len(t, backups[0].Records, 4, "newest first")
	require.Len(t, backups[2].Records, 2)
}

func TestScheduleVersioning(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	_, err := db.LoadSchedule(ctx, "morning")
	require.ErrorIs(t, err, model.ErrNotFound)

	s := model.Schedule{Session: "morning", GeneratedAt: time.Now().UTC(), Entries: []model.ScheduleEntry{
		{Index: 0, Status: model.StatusPending, Item: model.Item{Content: "hello", Category: "JOKE"}},
	}}
	require.NoError(t, db.PutSchedule(ctx, &s))
	require.Equal(t, int64(1), s.Version)

	a, err := db.LoadSchedule(ctx, "morning")
	require.NoError(t, err)
	b, err := db.LoadSchedule(ctx, "morning")
	require.NoError(t, err)

	a.Entries[0].Status = model.StatusCompleted
	require.NoError(t, db.UpdateSchedule(ctx, &a))
	require.Equal(t, int64(2), a.Version)

	b.Entries[0].Status = model.StatusFailed
	require.ErrorIs(t, db.UpdateSchedule(ctx, &b), model.ErrVersionConflict)

	got, err := db.LoadSchedule(ctx, "morning")
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, got.Entries[0].Status)
	require.Equal(t, int64(2), got.Version)

	missing := model.Schedule{Session: "evening", Version: 1}
	require.ErrorIs(t, db.UpdateSchedule(ctx, &missing), model.ErrNotFound)

	require.NoError(t, db.PutSchedule(ctx, &s))
	require.Equal(t, int64(3), s.Version)
}

func TestReopenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")
	db, err := Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, db.SaveCursor(ctx, "k", "v"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	v, err := db.LoadCursor(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}
