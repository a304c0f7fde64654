package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tweetsmith/internal/logging"
	"tweetsmith/internal/model"
)

type Generator interface {
	GenerateAvoiding(ctx context.Context, c model.Category, avoid []string) (model.Item, error)
}

type Selector interface {
	Next(used map[model.Category]bool) model.Category
}

type Store interface {
	PutSchedule(ctx context.Context, s *model.Schedule) error
}

type Options struct {
	// Windows maps session names to their allowed time window; sessions without one are unbounded.
	Windows map[string]*Window
	Now     func() time.Time
	Logger  logging.Logger
}

// Builder generates every slot of a session and persists the schedule as a whole.
type Builder struct {
	gen   Generator
	sel   Selector
	store Store
	opts  Options
}

func NewBuilder(gen Generator, sel Selector, store Store, opts Options) *Builder {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Builder{gen: gen, sel: sel, store: store, opts: opts}
}

// Build produces slotCount pending entries interval apart, starting now.
// Nothing is persisted unless every slot succeeds; a stored schedule for the session is replaced.
func (b *Builder) Build(ctx context.Context, session string, slotCount int, interval time.Duration) (model.Schedule, error) {
	if slotCount <= 0 {
		return model.Schedule{}, fmt.Errorf("slot count must be positive, got %d", slotCount)
	}
	window := b.opts.Windows[session]
	log := b.opts.Logger.WithField("session", session)
	start := b.opts.Now()
	sched := model.Schedule{Session: session, GeneratedAt: start.UTC()}
	used := map[model.Category]bool{}
	var produced []string

	for i := 0; i < slotCount; i++ {
		if window.Expired(b.opts.Now()) {
			log.WithFields(logrus.Fields{"slot": i, "window": window.String()}).Warn("build_window_expired")
			return model.Schedule{}, fmt.Errorf("build %s slot %d: %w", session, i, model.ErrWindowExpired)
		}
		c := b.sel.Next(used)
		used[c] = true
		item, err := b.gen.GenerateAvoiding(ctx, c, produced)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return model.Schedule{}, err
			}
			return model.Schedule{}, fmt.Errorf("build %s slot %d (%s): %w", session, i, c, err)
		}
		produced = append(produced, item.Content)
		entry := model.ScheduleEntry{
			Index:         i,
			ScheduledTime: start.Add(time.Duration(i) * interval).UTC(),
			Item:          item,
			Status:        model.StatusPending,
		}
		sched.Entries = append(sched.Entries, entry)
		log.WithFields(logrus.Fields{"slot": i, "category": c, "at": entry.ScheduledTime}).Info("build_slot")
	}

	if err := b.store.PutSchedule(ctx, &sched); err != nil {
		return model.Schedule{}, model.Storage("save schedule", err)
	}
	log.WithFields(logrus.Fields{"slots": len(sched.Entries), "version": sched.Version}).Info("build_ok")
	return sched, nil
}
