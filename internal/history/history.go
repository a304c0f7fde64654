// Package history keeps the rolling archive of published items used for deduplication.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tweetsmith/internal/logging"
	"tweetsmith/internal/metrics"
	"tweetsmith/internal/model"
)

// Backend persists the whole archive. LoadHistory returns an error wrapping
// model.ErrNotFound when nothing was ever saved.
type Backend interface {
	LoadHistory(ctx context.Context) ([]model.HistoryRecord, error)
	SaveHistory(ctx context.Context, records []model.HistoryRecord) error
	BackupHistory(ctx context.Context, records []model.HistoryRecord, keep int) error
}

type Options struct {
	RetentionDays int
	BackupKeep    int
	// ValidCategory reports whether a record's category is configured. Nil accepts any non-empty category.
	ValidCategory func(model.Category) bool
	Now           func() time.Time
	Logger        logging.Logger
}

const (
	DefaultRetentionDays = 90
	DefaultBackupKeep    = 10
)

// Store is a single-writer archive on top of a Backend.
type Store struct {
	backend Backend
	opts    Options
}

func New(b Backend, opts Options) *Store {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Store{backend: b, opts: opts}
}

// Append validates rec, backs up the previous archive, adds rec and prunes to retention.
func (s *Store) Append(ctx context.Context, rec model.HistoryRecord) error {
	if err := s.validate(rec); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	records, existed, err := s.load(ctx)
	if err != nil {
		return err
	}
	if existed {
		if err := s.backup(ctx, records); err != nil {
			return err
		}
	}
	records = append(records, rec)
	kept := s.within(records, s.opts.RetentionDays)
	if err := s.backend.SaveHistory(ctx, kept); err != nil {
		return model.Storage("save history", err)
	}
	metrics.HistoryRecords.Set(float64(len(kept)))
	s.opts.Logger.WithFields(logging.Fields{
		"id": rec.ID, "category": rec.Category, "pruned": len(records) - len(kept), "total": len(kept),
	}).Info("history_append")
	return nil
}

// Recent returns the records created within the last windowDays days.
func (s *Store) Recent(ctx context.Context, windowDays int) ([]model.HistoryRecord, error) {
	records, _, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.within(records, windowDays), nil
}

// All returns the full archive in insertion order.
func (s *Store) All(ctx context.Context) ([]model.HistoryRecord, error) {
	records, _, err := s.load(ctx)
	return records, err
}

// Prune drops records older than windowDays and reports how many were removed.
func (s *Store) Prune(ctx context.Context, windowDays int) (int, error) {
	if windowDays <= 0 {
		windowDays = s.opts.RetentionDays
	}
	records, existed, err := s.load(ctx)
	if err != nil || !existed {
		return 0, err
	}
	kept := s.within(records, windowDays)
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.backup(ctx, records); err != nil {
		return 0, err
	}
	if err := s.backend.SaveHistory(ctx, kept); err != nil {
		return 0, model.Storage("save history", err)
	}
	metrics.HistoryRecords.Set(float64(len(kept)))
	s.opts.Logger.WithFields(logging.Fields{"removed": removed, "total": len(kept)}).Info("history_prune")
	return removed, nil
}

func (s *Store) load(ctx context.Context) ([]model.HistoryRecord, bool, error) {
	records, err := s.backend.LoadHistory(ctx)
	if errors.Is(err, model.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, model.Storage("load history", err)
	}
	return records, true, nil
}

func (s *Store) backup(ctx context.Context, records []model.HistoryRecord) error {
	if s.opts.BackupKeep == 0 {
		return nil
	}
	if err := s.backend.BackupHistory(ctx, records, s.opts.BackupKeep); err != nil {
		return model.Storage("backup history", err)
	}
	return nil
}

func (s *Store) within(records []model.HistoryRecord, days int) []model.HistoryRecord {
	cutoff := s.opts.Now().Add(-time.Duration(days) * 24 * time.Hour)
	out := make([]model.HistoryRecord, 0, len(records))
	for _, r := range records {
		if !r.CreatedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) validate(rec model.HistoryRecord) error {
	n := len([]rune(rec.Content))
	switch {
	case n == 0 || n > model.MaxContentLength:
		return fmt.Errorf("%w: content length %d", model.ErrInvalidRecord, n)
	case rec.Category == "":
		return fmt.Errorf("%w: missing category", model.ErrInvalidRecord)
	case s.opts.ValidCategory != nil && !s.opts.ValidCategory(rec.Category):
		return fmt.Errorf("%w: unknown category %q", model.ErrInvalidRecord, rec.Category)
	case rec.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing createdAt", model.ErrInvalidRecord)
	}
	return nil
}
