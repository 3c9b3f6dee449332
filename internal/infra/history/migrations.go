package history

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// Migration is one schema step.
type Migration struct {
	Version int
	UpSQL   string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	shape TEXT NOT NULL,
	plan_summary TEXT NOT NULL,
	reason TEXT NOT NULL CHECK(reason IN ('completed','stopped','reset')),
	started_at TEXT NOT NULL,
	ended_at TEXT NOT NULL,
	elapsed_ms INTEGER NOT NULL,
	rounds_completed INTEGER NOT NULL,
	legs_completed INTEGER NOT NULL,
	total_legs INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS sessions_ended_at ON sessions(ended_at);
`,
	},
}

// ApplyMigrations brings the schema up to date. Applied versions are
// skipped.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return errors.Wrap(err, "create schema_migrations")
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(err, "check migration %d", m.Version)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrapf(err, "begin tx for migration %d", m.Version)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return errors.Wrapf(err, "apply migration %d", m.Version)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return errors.Wrapf(err, "record migration %d", m.Version)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %d", m.Version)
		}
	}
	return nil
}
