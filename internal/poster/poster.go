// Package poster publishes one scheduled entry and records the outcome.
package poster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tweetsmith/internal/logging"
	"tweetsmith/internal/metrics"
	"tweetsmith/internal/model"
	"tweetsmith/internal/schedule"
	"tweetsmith/internal/xclient"
)

type ScheduleStore interface {
	LoadSchedule(ctx context.Context, session string) (model.Schedule, error)
	UpdateSchedule(ctx context.Context, s *model.Schedule) error
}

type HistoryAppender interface {
	Append(ctx context.Context, rec model.HistoryRecord) error
}

type Options struct {
	MaxRetries        int
	BaseBackoff       time.Duration
	RateLimitCooldown time.Duration
	SafetyMargin      int
	ResetBuffer       time.Duration
	Windows           map[string]*schedule.Window

	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger logging.Logger
}

// conflictRetries bounds reload-and-retry on concurrent schedule writes.
const conflictRetries = 5

// PostURL is the public link of a published post.
func PostURL(id string) string { return "https://x.com/i/web/status/" + id }

type Poster struct {
	store   ScheduleStore
	pub     xclient.Publisher
	history HistoryAppender
	opts    Options
}

func New(store ScheduleStore, pub xclient.Publisher, history HistoryAppender, opts Options) *Poster {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Poster{store: store, pub: pub, history: history, opts: opts}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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

// PostEntry publishes entry index of session. Only pending entries are posted; the entry
// ends completed or failed, except on auth errors and cancellation where it stays pending.
// When the post succeeds but archiving it fails the result carries a Warning. When the
// post succeeds but the schedule cannot be updated, the result still carries the PostID
// alongside the StorageError.
func (p *Poster) PostEntry(ctx context.Context, session string, index int) (model.PostResult, error) {
	log := p.opts.Logger.WithFields(logrus.Fields{"session": session, "index": index})
	if p.opts.Windows[session].Expired(p.opts.Now()) {
		return model.PostResult{}, fmt.Errorf("post %s[%d]: %w", session, index, model.ErrWindowExpired)
	}
	sched, err := p.store.LoadSchedule(ctx, session)
	if err != nil {
		return model.PostResult{}, model.Storage("load schedule", err)
	}
	entry := sched.Entry(index)
	if entry == nil {
		return model.PostResult{}, fmt.Errorf("%w: %d not in 0..%d", model.ErrInvalidIndex, index, len(sched.Entries)-1)
	}
	if entry.Status != model.StatusPending {
		return model.PostResult{}, fmt.Errorf("%w: %s[%d] is %s", model.ErrNotPending, session, index, entry.Status)
	}
	item := entry.Item

	acct, err := p.pub.VerifyIdentity(ctx)
	if err != nil {
		return model.PostResult{}, fmt.Errorf("verify credentials: %w", err)
	}
	log = log.WithField("account", acct.Username)

	if err := p.awaitQuota(ctx, log); err != nil {
		return model.PostResult{}, err
	}

	postID, attempts, err := p.publish(ctx, item.Content, log)
	if err != nil {
		if errors.Is(err, model.ErrAuth) || ctx.Err() != nil {
			return model.PostResult{}, err
		}
		metrics.Posts.WithLabelValues("failed").Inc()
		if merr := p.update(ctx, session, index, func(e *model.ScheduleEntry) bool {
			if e.Status != model.StatusPending {
				return false
			}
			e.Status = model.StatusFailed
			e.Attempts = attempts
			e.LastError = err.Error()
			return true
		}); merr != nil {
			log.WithError(merr).Error("post_mark_failed_error")
			return model.PostResult{}, fmt.Errorf("%w: %s[%d] after %d attempts: %v; %w", model.ErrPostFailed, session, index, attempts, err, merr)
		}
		log.WithError(err).WithField("attempts", attempts).Error("post_failed")
		return model.PostResult{}, fmt.Errorf("%w: %s[%d] after %d attempts: %v", model.ErrPostFailed, session, index, attempts, err)
	}

	postedAt := p.opts.Now().UTC()
	metrics.Posts.WithLabelValues("completed").Inc()
	log = log.WithFields(logrus.Fields{"post_id": postID, "url": PostURL(postID), "attempts": attempts})
	res := model.PostResult{Session: session, Index: index, PostID: postID, PostedAt: postedAt, Attempts: attempts}

	saveErr := p.update(ctx, session, index, func(e *model.ScheduleEntry) bool {
		if e.Status == model.StatusCompleted {
			log.WithField("other_post_id", e.PostID).Warn("post_concurrent_completion")
			return false
		}
		e.Status = model.StatusCompleted
		e.PostID = postID
		e.PostedAt = &postedAt
		e.Attempts = attempts
		e.LastError = ""
		return true
	})

	rec := model.HistoryRecord{Content: item.Content, Category: item.Category, CreatedAt: postedAt, Session: sched.Session, PostID: postID}
	if err := p.history.Append(ctx, rec); err != nil {
		res.Warning = fmt.Errorf("%w: %v", model.ErrHistoryWriteFailed, err)
		log.WithError(err).Warn("history_write_failed")
	}
	if saveErr != nil {
		log.WithError(saveErr).Error("post_mark_completed_error")
		return res, saveErr
	}
	log.Info("post_ok")
	return res, nil
}

// awaitQuota sleeps until the publish window resets when fewer than SafetyMargin calls remain.
func (p *Poster) awaitQuota(ctx context.Context, log logging.Logger) error {
	rl, err := p.pub.RateLimitStatus(ctx)
	if err != nil {
		log.WithError(err).Warn("ratelimit_status_unavailable")
		return nil
	}
	now := p.opts.Now()
	if !rl.Known || rl.Remaining >= p.opts.SafetyMargin || !rl.Reset.After(now) {
		return nil
	}
	wait := rl.Reset.Sub(now) + p.opts.ResetBuffer
	log.WithFields(logrus.Fields{"remaining": rl.Remaining, "reset": rl.Reset, "wait": wait.String()}).Info("ratelimit_wait")
	metrics.ObserveRateLimitWait(wait)
	return p.opts.Sleep(ctx, wait)
}

// publish makes one attempt plus up to MaxRetries retries. It returns the number of attempts made.
// The loop sleeps through Options.Sleep so waits stay observable and cancellable.
func (p *Poster) publish(ctx context.Context, text string, log logging.Logger) (string, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.opts.MaxRetries; attempt++ {
		attempts++
		id, err := p.pub.Publish(ctx, text)
		if err == nil {
			return id, attempts, nil
		}
		lastErr = err
		if errors.Is(err, model.ErrAuth) || ctx.Err() != nil {
			return "", attempts, err
		}
		if errors.Is(err, model.ErrRejected) || errors.Is(err, model.ErrUnconfirmed) {
			// Permanent; an unconfirmed post may already be live.
			return "", attempts, err
		}
		if attempt == p.opts.MaxRetries {
			break
		}
		kind := "backoff"
		wait := p.opts.BaseBackoff * time.Duration(1<<attempt)
		var rle *model.RateLimitError
		if errors.As(err, &rle) {
			kind = "ratelimit"
			wait = p.opts.RateLimitCooldown
			if !rle.Reset.IsZero() {
				if d := rle.Reset.Sub(p.opts.Now()) + p.opts.ResetBuffer; d > wait {
					wait = d
				}
			}
			metrics.ObserveRateLimitWait(wait)
		}
		metrics.PostRetries.WithLabelValues(kind).Inc()
		log.WithError(err).WithFields(logrus.Fields{"attempt": attempts, "kind": kind, "wait": wait.String()}).Warn("post_retry")
		if err := p.opts.Sleep(ctx, wait); err != nil {
			return "", attempts, err
		}
	}
	return "", attempts, lastErr
}

// update reloads the schedule, applies mutate to the entry and writes it back with a
// version check, retrying on conflicts. mutate returns false to skip the write.
func (p *Poster) update(ctx context.Context, session string, index int, mutate func(*model.ScheduleEntry) bool) error {
	for i := 0; i < conflictRetries; i++ {
		s, err := p.store.LoadSchedule(ctx, session)
		if err != nil {
			return model.Storage("reload schedule", err)
		}
		e := s.Entry(index)
		if e == nil {
			return fmt.Errorf("%w: %d vanished from %s", model.ErrInvalidIndex, index, session)
		}
		if !mutate(e) {
			return nil
		}
		err = p.store.UpdateSchedule(ctx, &s)
		if errors.Is(err, model.ErrVersionConflict) {
			continue
		}
		return model.Storage("update schedule", err)
	}
	return model.Storage("update schedule", fmt.Errorf("%s: %w after %d tries", session, model.ErrVersionConflict, conflictRetries))
}
