// Package history keeps a SQLite record of finished utterances.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"scriba/config"
	"scriba/reconcile"
)

type Entry struct {
	ID         string
	Outcome    string
	Reason     string
	Text       string
	Confidence float64
	Scored     bool
	Revisions  int
	StartedAt  time.Time
	EndedAt    time.Time
}

// Store is a no-op when opened with an empty path.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	clock func() time.Time
}

func Open(ctx context.Context, cfg config.HistoryConfig) (*Store, error) {
	s := &Store{cfg: cfg, clock: time.Now}
	if cfg.Path == "" {
		return s, nil
	}

	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Prune(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("prune history: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS utterances (
    id TEXT PRIMARY KEY,
    outcome TEXT NOT NULL,
    reason TEXT,
    text TEXT,
    confidence REAL,
    revisions INTEGER NOT NULL,
    started_at INTEGER NOT NULL,
    ended_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_utterances_ended ON utterances(ended_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Enabled() bool { return s.db != nil }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a finished session. Sessions still open are ignored.
func (s *Store) Record(ctx context.Context, sess reconcile.Session) error {
	if s.db == nil || !sess.State.Terminal() {
		return nil
	}
	var confidence sql.NullFloat64
	if sess.Last.Scored {
		confidence = sql.NullFloat64{Float64: sess.Last.Confidence, Valid: true}
	}
	ended := sess.EndedAt
	if ended.IsZero() {
		ended = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO utterances(id, outcome, reason, text, confidence, revisions, started_at, ended_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		sess.ID, sess.State.String(), sess.Reason, sess.Text(), confidence, sess.Revisions,
		sess.StartedAt.UnixMilli(), ended.UnixMilli())
	return err
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, outcome, reason, text, confidence, revisions, started_at, ended_at
		 FROM utterances ORDER BY ended_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var reason, text sql.NullString
		var confidence sql.NullFloat64
		var started, ended int64
		if err := rows.Scan(&e.ID, &e.Outcome, &reason, &text, &confidence, &e.Revisions, &started, &ended); err != nil {
			return nil, err
		}
		e.Reason = reason.String
		e.Text = text.String
		e.Confidence, e.Scored = confidence.Float64, confidence.Valid
		e.StartedAt = time.UnixMilli(started)
		e.EndedAt = time.UnixMilli(ended)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune applies the retention settings.
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM utterances WHERE ended_at < ?`, cutoff.UnixMilli()); err != nil {
			return err
		}
	}
	if s.cfg.MaxUtterances > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM utterances WHERE id IN (
			SELECT id FROM utterances ORDER BY ended_at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxUtterances)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
