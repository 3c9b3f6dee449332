// Package history records finished breathing sessions in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// ErrInvalidEntry is returned when an entry cannot be recorded.
var ErrInvalidEntry = errors.New("invalid history entry")

// Reasons a session ended.
const (
	ReasonCompleted = "completed"
	ReasonStopped   = "stopped"
	ReasonReset     = "reset"
)

// Entry is one recorded session.
type Entry struct {
	SessionID       string
	Shape           string
	PlanSummary     string
	Reason          string
	StartedAt       time.Time
	EndedAt         time.Time
	Elapsed         time.Duration
	RoundsCompleted int
	LegsCompleted   int
	TotalLegs       int
}

// Store is a SQLite-backed session history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create db dir")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, errors.Wrap(err, "ping sqlite")
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close() //nolint:errcheck
		return nil, errors.Wrap(err, "chmod db path")
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores the entry. Recording the same session again replaces
// the earlier row.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.SessionID) == "" {
		return errors.Wrap(ErrInvalidEntry, "session id is required")
	}
	if e.EndedAt.IsZero() {
		e.EndedAt = time.Now().UTC()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.EndedAt.Add(-e.Elapsed)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(session_id, shape, plan_summary, reason, started_at, ended_at, elapsed_ms, rounds_completed, legs_completed, total_legs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	shape=excluded.shape,
	plan_summary=excluded.plan_summary,
	reason=excluded.reason,
	ended_at=excluded.ended_at,
	elapsed_ms=excluded.elapsed_ms,
	rounds_completed=excluded.rounds_completed,
	legs_completed=excluded.legs_completed,
	total_legs=excluded.total_legs
`, e.SessionID, e.Shape, e.PlanSummary, e.Reason, ts(e.StartedAt), ts(e.EndedAt),
		e.Elapsed.Milliseconds(), e.RoundsCompleted, e.LegsCompleted, e.TotalLegs)
	if err != nil {
		return errors.Wrapf(err, "record session %s", e.SessionID)
	}
	return nil
}

// List returns up to limit entries, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, shape, plan_summary, reason, started_at, ended_at, elapsed_ms, rounds_completed, legs_completed, total_legs
FROM sessions
ORDER BY ended_at DESC, session_id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query sessions")
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e                  Entry
			startedAt, endedAt string
			elapsedMs          int64
		)
		if err := rows.Scan(&e.SessionID, &e.Shape, &e.PlanSummary, &e.Reason, &startedAt, &endedAt,
			&elapsedMs, &e.RoundsCompleted, &e.LegsCompleted, &e.TotalLegs); err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		if e.StartedAt, err = parseTS(startedAt); err != nil {
			return nil, errors.Wrapf(err, "parse started_at of %s", e.SessionID)
		}
		if e.EndedAt, err = parseTS(endedAt); err != nil {
			return nil, errors.Wrapf(err, "parse ended_at of %s", e.SessionID)
		}
		e.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iter sessions")
	}
	return out, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
