package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("08:30", 6*time.Hour, "Asia/Kolkata")
	require.NoError(t, err)
	require.Equal(t, 8, w.Hour)
	require.Equal(t, 30, w.Minute)

	w, err = ParseWindow("1800", time.Hour, "")
	require.NoError(t, err)
	require.Equal(t, time.UTC, w.Location)

	for _, bad := range []string{"", "8:30", "24:00", "12:60", "ab:cd"} {
		_, err := ParseWindow(bad, time.Hour, "")
		require.Error(t, err, bad)
	}
	_, err = ParseWindow("08:00", 0, "")
	require.Error(t, err)
	_, err = ParseWindow("08:00", time.Hour, "Mars/Olympus")
	require.Error(t, err)
}

func TestWindowExpiry(t *testing.T) {
	w, err := ParseWindow("08:30", 6*time.Hour, "UTC")
	require.NoError(t, err)
	day := func(h, m int) time.Time { return time.Date(2025, 5, 1, h, m, 0, 0, time.UTC) }

	require.False(t, w.Expired(day(7, 0)))
	require.False(t, w.Open(day(7, 0)))
	require.True(t, w.Open(day(9, 0)))
	require.False(t, w.Expired(day(14, 30)))
	require.True(t, w.Expired(day(14, 31)))
	require.False(t, w.Open(day(15, 0)))

	require.Equal(t, day(8, 30), w.NextStart(day(10, 0)))
	require.Equal(t, day(8, 30).AddDate(0, 0, 1), w.NextStart(day(20, 0)))

	var none *Window
	require.False(t, none.Expired(day(23, 0)))
	require.True(t, none.Open(day(3, 0)))
}

func TestWindowUsesZone(t *testing.T) {
	w, err := ParseWindow("08:30", 6*time.Hour, "Asia/Kolkata")
	require.NoError(t, err)
	// 03:00 UTC is 08:30 IST.
	at := time.Date(2025, 5, 1, 3, 0, 0, 0, time.UTC)
	require.True(t, w.Open(at))
	require.True(t, w.Expired(at.Add(6*time.Hour+time.Minute)))
}
