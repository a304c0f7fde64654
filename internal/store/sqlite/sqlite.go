// Package sqlite persists schedules, history, history backups and cursors in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tweetsmith/internal/model"
)

// DB wraps a SQLite database.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases shared and serializes writers.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS history (
	  seq INTEGER PRIMARY KEY AUTOINCREMENT,
	  id TEXT NOT NULL,
	  content TEXT NOT NULL,
	  category TEXT NOT NULL,
	  created_at INTEGER NOT NULL,
	  session TEXT NOT NULL DEFAULT '',
	  post_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);
	CREATE TABLE IF NOT EXISTS history_meta (
	  id INTEGER PRIMARY KEY CHECK (id=1),
	  saved_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS history_backups (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  taken_at INTEGER NOT NULL,
	  payload TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS schedules (
	  session TEXT PRIMARY KEY,
	  version INTEGER NOT NULL,
	  updated_at INTEGER NOT NULL,
	  payload TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS cursors (
	  key TEXT PRIMARY KEY,
	  value TEXT NOT NULL,
	  updated_at INTEGER NOT NULL
	);
	`)
	return err
}

// LoadHistory returns the archive in insertion order, or model.ErrNotFound if it was never saved.
func (d *DB) LoadHistory(ctx context.Context) ([]model.HistoryRecord, error) {
	var savedAt int64
	err := d.sql.QueryRowContext(ctx, `SELECT saved_at FROM history_meta WHERE id=1`).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history: %w", model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rows, err := d.sql.QueryContext(ctx, `SELECT id, content, category, created_at, session, post_id FROM history ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.HistoryRecord{}
	for rows.Next() {
		var r model.HistoryRecord
		var created int64
		if err := rows.Scan(&r.ID, &r.Content, &r.Category, &created, &r.Session, &r.PostID); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveHistory replaces the archive atomically.
func (d *DB) SaveHistory(ctx context.Context, records []model.HistoryRecord) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO history(id, content, category, created_at, session, post_id) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Content, string(r.Category), r.CreatedAt.UnixNano(), r.Session, r.PostID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO history_meta(id, saved_at) VALUES(1, ?) ON CONFLICT(id) DO UPDATE SET saved_at=excluded.saved_at`, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

// BackupHistory stores a snapshot and keeps only the newest keep snapshots.
func (d *DB) BackupHistory(ctx context.Context, records []model.HistoryRecord, keep int) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT INTO history_backups(taken_at, payload) VALUES(?,?)`, time.Now().Unix(), string(payload)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM history_backups WHERE id NOT IN (SELECT id FROM history_backups ORDER BY id DESC LIMIT ?)`, keep); err != nil {
		return err
	}
	return tx.Commit()
}

// Backup is one stored history snapshot.
type Backup struct {
	ID      int64
	TakenAt time.Time
	Records []model.HistoryRecord
}

// ListBackups returns snapshots newest first.
func (d *DB) ListBackups(ctx context.Context) ([]Backup, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, taken_at, payload FROM history_backups ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Backup
	for rows.Next() {
		var b Backup
		var ts int64
		var payload string
		if err := rows.Scan(&b.ID, &ts, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &b.Records); err != nil {
			return nil, fmt.Errorf("backup %d: %w", b.ID, err)
		}
		b.TakenAt = time.Unix(ts, 0).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// LoadSchedule returns the schedule of session, or an error wrapping model.ErrNotFound.
func (d *DB) LoadSchedule(ctx context.Context, session string) (model.Schedule, error) {
	var version int64
	var payload string
	err := d.sql.QueryRowContext(ctx, `SELECT version, payload FROM schedules WHERE session=?`, session).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schedule{}, fmt.Errorf("schedule %q: %w", session, model.ErrNotFound)
	}
	if err != nil {
		return model.Schedule{}, err
	}
	var s model.Schedule
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return model.Schedule{}, fmt.Errorf("schedule %q: %w", session, err)
	}
	s.Version = version
	return s, nil
}

// PutSchedule overwrites the schedule of s.Session regardless of its version and
// sets s.Version to the stored version.
func (d *DB) PutSchedule(ctx context.Context, s *model.Schedule) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var version int64
	err = d.sql.QueryRowContext(ctx, `
	INSERT INTO schedules(session, version, updated_at, payload) VALUES(?, 1, ?, ?)
	ON CONFLICT(session) DO UPDATE SET version=schedules.version+1, updated_at=excluded.updated_at, payload=excluded.payload
	RETURNING version`, s.Session, time.Now().Unix(), string(payload)).Scan(&version)
	if err != nil {
		return err
	}
	s.Version = version
	return nil
}

// UpdateSchedule writes s only if the stored version still equals s.Version.
// On success s.Version is advanced; otherwise model.ErrVersionConflict is returned.
func (d *DB) UpdateSchedule(ctx context.Context, s *model.Schedule) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	res, err := d.sql.ExecContext(ctx, `UPDATE schedules SET version=version+1, updated_at=?, payload=? WHERE session=? AND version=?`,
		time.Now().Unix(), string(payload), s.Session, s.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := d.sql.QueryRowContext(ctx, `SELECT 1 FROM schedules WHERE session=?`, s.Session).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("schedule %q: %w", s.Session, model.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("schedule %q at version %d: %w", s.Session, s.Version, model.ErrVersionConflict)
	}
	s.Version++
	return nil
}

// SaveCursor upserts a key/value pair.
func (d *DB) SaveCursor(ctx context.Context, key, value string) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO cursors(key, value, updated_at) VALUES(?,?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

// LoadCursor returns the stored value, or "" when key is unset.
func (d *DB) LoadCursor(ctx context.Context, key string) (string, error) {
	var v string
	err := d.sql.QueryRowContext(ctx, `SELECT value FROM cursors WHERE key=?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}
