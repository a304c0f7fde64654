// Package filestore persists the same records as the sqlite store as JSON files in a directory:
//
//	<dir>/history.json
//	<dir>/backups/history-<unixnano>.json
//	<dir>/schedules/<session>.json
//	<dir>/cursors.json
//
// Writes go through a temp file and rename. Version checks are best-effort across processes.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"tweetsmith/internal/model"
)

var sessionName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Store struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func Open(dir string) (*Store, error) {
	for _, d := range []string{dir, filepath.Join(dir, "backups"), filepath.Join(dir, "schedules")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) historyPath() string { return filepath.Join(s.dir, "history.json") }
func (s *Store) cursorsPath() string { return filepath.Join(s.dir, "cursors.json") }
func (s *Store) backupDir() string   { return filepath.Join(s.dir, "backups") }

func (s *Store) schedulePath(session string) (string, error) {
	if !sessionName.MatchString(session) {
		return "", fmt.Errorf("invalid session name %q", session)
	}
	return filepath.Join(s.dir, "schedules", session+".json"), nil
}

// LoadHistory returns the archive, or model.ErrNotFound if history.json does not exist.
func (s *Store) LoadHistory(ctx context.Context) ([]model.HistoryRecord, error) {
	var out []model.HistoryRecord
	if err := readJSON(s.historyPath(), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.HistoryRecord{}
	}
	return out, nil
}

func (s *Store) SaveHistory(ctx context.Context, records []model.HistoryRecord) error {
	if records == nil {
		records = []model.HistoryRecord{}
	}
	return writeJSON(s.historyPath(), records)
}

// BackupHistory writes a snapshot and removes all but the newest keep snapshots.
func (s *Store) BackupHistory(ctx context.Context, records []model.HistoryRecord, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp := s.now().UnixNano()
	var path string
	for {
		path = filepath.Join(s.backupDir(), fmt.Sprintf("history-%020d.json", stamp))
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			break
		}
		stamp++
	}
	if err := writeJSON(path, records); err != nil {
		return err
	}
	names, err := s.backupNames()
	if err != nil {
		return err
	}
	for len(names) > keep {
		if err := os.Remove(filepath.Join(s.backupDir(), names[0])); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		names = names[1:]
	}
	return nil
}

// backupNames lists snapshot files oldest first.
func (s *Store) backupNames() ([]string, error) {
	entries, err := os.ReadDir(s.backupDir())
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "history-") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadSchedule returns the stored schedule, or an error wrapping model.ErrNotFound.
func (s *Store) LoadSchedule(ctx context.Context, session string) (model.Schedule, error) {
	path, err := s.schedulePath(session)
	if err != nil {
		return model.Schedule{}, err
	}
	var sched model.Schedule
	if err := readJSON(path, &sched); err != nil {
		return model.Schedule{}, fmt.Errorf("schedule %q: %w", session, err)
	}
	return sched, nil
}

// PutSchedule overwrites the session's schedule and advances its version.
func (s *Store) PutSchedule(ctx context.Context, sched *model.Schedule) error {
	path, err := s.schedulePath(sched.Session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur model.Schedule
	switch err := readJSON(path, &cur); {
	case err == nil:
		sched.Version = cur.Version + 1
	case errors.Is(err, model.ErrNotFound):
		sched.Version = 1
	default:
		return err
	}
	return writeJSON(path, sched)
}

// UpdateSchedule writes sched only when the stored version equals sched.Version.
func (s *Store) UpdateSchedule(ctx context.Context, sched *model.Schedule) error {
	path, err := s.schedulePath(sched.Session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur model.Schedule
	if err := readJSON(path, &cur); err != nil {
		return fmt.Errorf("schedule %q: %w", sched.Session, err)
	}
	if cur.Version != sched.Version {
		return fmt.Errorf("schedule %q at version %d (stored %d): %w", sched.Session, sched.Version, cur.Version, model.ErrVersionConflict)
	}
	next := *sched
	next.Version++
	if err := writeJSON(path, &next); err != nil {
		return err
	}
	sched.Version = next.Version
	return nil
}

func (s *Store) SaveCursor(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursors := map[string]string{}
	if err := readJSON(s.cursorsPath(), &cursors); err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	cursors[key] = value
	return writeJSON(s.cursorsPath(), cursors)
}

// LoadCursor returns the stored value, or "" when key is unset.
func (s *Store) LoadCursor(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursors := map[string]string{}
	if err := readJSON(s.cursorsPath(), &cursors); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return cursors[key], nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", filepath.Base(path), model.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
