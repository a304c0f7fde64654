// Package schedule builds the per-session list of slots and tracks the session time window.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is the span of wall-clock time, starting at Start each day in Location,
// during which a session may build and post.
type Window struct {
	Hour, Minute int
	Duration     time.Duration
	Location     *time.Location
}

// ParseWindow builds a Window from "HH:MM" (or "HHMM"), a duration and an IANA zone name.
func ParseWindow(start string, d time.Duration, tz string) (*Window, error) {
	h, m, err := parseClock(start)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("timezone %q: %w", tz, err)
		}
	}
	if d <= 0 {
		return nil, fmt.Errorf("window duration must be positive, got %s", d)
	}
	return &Window{Hour: h, Minute: m, Duration: d, Location: loc}, nil
}

func parseClock(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	digits := strings.ReplaceAll(s, ":", "")
	if len(digits) != 4 {
		return 0, 0, fmt.Errorf("start %q: want HH:MM", s)
	}
	h, err1 := strconv.Atoi(digits[:2])
	m, err2 := strconv.Atoi(digits[2:])
	if err1 != nil || err2 != nil || h > 23 || m > 59 || h < 0 || m < 0 {
		return 0, 0, fmt.Errorf("start %q: want HH:MM", s)
	}
	return h, m, nil
}

// StartOn returns the window start on the calendar day of now in the window's zone.
func (w *Window) StartOn(now time.Time) time.Time {
	t := now.In(w.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), w.Hour, w.Minute, 0, 0, w.Location)
}

// Expired reports whether more than Duration has passed since today's start.
// A nil Window never expires.
func (w *Window) Expired(now time.Time) bool {
	if w == nil {
		return false
	}
	return now.Sub(w.StartOn(now)) > w.Duration
}

// Open reports whether now lies inside today's window.
func (w *Window) Open(now time.Time) bool {
	if w == nil {
		return true
	}
	start := w.StartOn(now)
	return !now.Before(start) && !w.Expired(now)
}

// NextStart returns the earliest window start that is not yet expired at now:
// today's start if the window is still open or upcoming, otherwise tomorrow's.
func (w *Window) NextStart(now time.Time) time.Time {
	if w == nil {
		return now
	}
	start := w.StartOn(now)
	if w.Expired(now) {
		return start.AddDate(0, 0, 1)
	}
	return start
}

func (w *Window) String() string {
	if w == nil {
		return "always"
	}
	return fmt.Sprintf("%02d:%02d+%s %s", w.Hour, w.Minute, w.Duration, w.Location)
}
