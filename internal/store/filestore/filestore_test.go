package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tweetsmith/internal/history"
	"tweetsmith/internal/model"
)

func TestScheduleVersioning(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = st.LoadSchedule(ctx, "morning")
	require.ErrorIs(t, err, model.ErrNotFound)

	s := model.Schedule{Session: "morning", Entries: []model.ScheduleEntry{{Index: 0, Status: model.StatusPending}}}
	require.NoError(t, st.PutSchedule(ctx, &s))
	require.Equal(t, int64(1), s.Version)

	a, err := st.LoadSchedule(ctx, "morning")
	require.NoError(t, err)
	b := a
	b.Entries = append([]model.ScheduleEntry(nil), a.Entries...)

	a.Entries[0].Status = model.StatusCompleted
	require.NoError(t, st.UpdateSchedule(ctx, &a))
	require.Equal(t, int64(2), a.Version)
	require.ErrorIs(t, st.UpdateSchedule(ctx, &b), model.ErrVersionConflict)

	got, err := st.LoadSchedule(ctx, "morning")
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, got.Entries[0].Status)
}

func TestRejectsPathLikeSessions(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = st.LoadSchedule(context.Background(), "../etc")
	require.Error(t, err)
}

func TestBackupsRetainNewest(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, st.BackupHistory(ctx, make([]model.HistoryRecord, i), 3))
	}
	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestCursors(t *testing.T) {
	st, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	v, err := st.LoadCursor(ctx, "a")
	require.NoError(t, err)
	require.Empty(t, v)
	require.NoError(t, st.SaveCursor(ctx, "a", "1"))
	require.NoError(t, st.SaveCursor(ctx, "b", "2"))
	v, err = st.LoadCursor(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", v)
}

func TestHistoryStoreOnFiles(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	hs := history.New(st, history.Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	require.NoError(t, hs.Append(ctx, model.HistoryRecord{Content: "old one", Category: "JOKE", CreatedAt: now.AddDate(0, 0, -100)}))
	require.NoError(t, hs.Append(ctx, model.HistoryRecord{Content: "new one", Category: "JOKE", CreatedAt: now}))

	all, err := hs.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "new one", all[0].Content)

	_, err = os.Stat(filepath.Join(dir, "history.json"))
	require.NoError(t, err)
}
