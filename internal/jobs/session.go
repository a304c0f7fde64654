// Package jobs drives a session end to end: build the schedule when needed,
// then post each entry once its time arrives.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"tweetsmith/internal/logging"
	"tweetsmith/internal/model"
	"tweetsmith/internal/schedule"
)

type Builder interface {
	Build(ctx context.Context, session string, slotCount int, interval time.Duration) (model.Schedule, error)
}

type Poster interface {
	PostEntry(ctx context.Context, session string, index int) (model.PostResult, error)
}

type ScheduleLoader interface {
	LoadSchedule(ctx context.Context, session string) (model.Schedule, error)
}

// Session is one named batch as configured.
type Session struct {
	Name     string
	Slots    int
	Interval time.Duration
	Window   *schedule.Window
}

type Runner struct {
	builder Builder
	poster  Poster
	store   ScheduleLoader
	log     logging.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewRunner(b Builder, p Poster, store ScheduleLoader, log logging.Logger) *Runner {
	if log == nil {
		log = logging.Default()
	}
	return &Runner{builder: b, poster: p, store: store, log: log, now: time.Now, sleep: sleep}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EnsureSchedule returns the session's schedule, building a new one when none is stored
// or the stored one predates the current window.
func (r *Runner) EnsureSchedule(ctx context.Context, s Session) (model.Schedule, error) {
	sched, err := r.store.LoadSchedule(ctx, s.Name)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return model.Schedule{}, model.Storage("load schedule", err)
	case s.Window == nil || !sched.GeneratedAt.Before(s.Window.StartOn(r.now())):
		return sched, nil
	}
	return r.builder.Build(ctx, s.Name, s.Slots, s.Interval)
}

// RunOnce posts every pending entry whose time has come, in index order.
// It reports whether all entries are terminal.
func (r *Runner) RunOnce(ctx context.Context, s Session) (bool, error) {
	sched, err := r.store.LoadSchedule(ctx, s.Name)
	if err != nil {
		return false, model.Storage("load schedule", err)
	}
	now := r.now()
	for _, e := range sched.Entries {
		if e.Status != model.StatusPending || e.ScheduledTime.After(now) {
			continue
		}
		res, err := r.poster.PostEntry(ctx, s.Name, e.Index)
		log := r.log.WithFields(logrus.Fields{"session": s.Name, "index": e.Index})
		switch {
		case err == nil:
			if res.Warning != nil {
				log.WithError(res.Warning).Warn("session_post_warning")
			}
		case errors.Is(err, model.ErrStorage):
			// The entry may still read pending after a live post; another tick would post it twice.
			log.WithError(err).WithField("post_id", res.PostID).Error("session_post_unrecorded")
			return false, err
		case errors.Is(err, model.ErrNotPending), errors.Is(err, model.ErrPostFailed):
			log.WithError(err).Warn("session_post_skipped")
		case errors.Is(err, model.ErrWindowExpired), errors.Is(err, model.ErrAuth), ctx.Err() != nil:
			return false, err
		default:
			// Left pending; the next tick tries again.
			log.WithError(err).WithField("kind", model.Kind(err)).Error("session_post_error")
		}
	}
	sched, err = r.store.LoadSchedule(ctx, s.Name)
	if err != nil {
		return false, model.Storage("load schedule", err)
	}
	return sched.Done(), nil
}

// Run waits for the window to open, ensures a schedule, then polls every tick until
// all entries are terminal. An expired window ends the run without error.
func (r *Runner) Run(ctx context.Context, s Session, tick time.Duration) error {
	log := r.log.WithField("session", s.Name)
	if s.Window != nil {
		now := r.now()
		if s.Window.Expired(now) {
			log.Info("session_window_closed")
			return nil
		}
		if start := s.Window.StartOn(now); start.After(now) {
			log.WithField("start", start).Info("session_wait_window")
			if err := r.sleep(ctx, start.Sub(now)); err != nil {
				return err
			}
		}
	}
	if _, err := r.EnsureSchedule(ctx, s); err != nil {
		if errors.Is(err, model.ErrWindowExpired) {
			log.Info("session_window_closed")
			return nil
		}
		return err
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		done, err := r.RunOnce(ctx, s)
		if errors.Is(err, model.ErrWindowExpired) {
			log.Info("session_window_closed")
			return nil
		}
		if err != nil {
			return err
		}
		if done {
			log.Info("session_done")
			return nil
		}
		select {
		case <-ctx.Done():
			log.Info("session_loop_stop")
			return ctx.Err()
		case <-t.C:
		}
	}
}
