package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

	first := Entry{
		SessionID:       "a",
		Shape:           "square",
		PlanSummary:     "2r × 4s",
		Reason:          ReasonCompleted,
		StartedAt:       base,
		EndedAt:         base.Add(32 * time.Second),
		Elapsed:         32 * time.Second,
		RoundsCompleted: 2,
		LegsCompleted:   8,
		TotalLegs:       8,
	}
	second := Entry{
		SessionID:       "b",
		Shape:           "triangle",
		PlanSummary:     "3r × 3s",
		Reason:          ReasonStopped,
		StartedAt:       base.Add(time.Hour),
		EndedAt:         base.Add(time.Hour + 10*time.Second),
		Elapsed:         10 * time.Second,
		RoundsCompleted: 1,
		LegsCompleted:   3,
		TotalLegs:       9,
	}
	require.NoError(t, store.Record(ctx, first))
	require.NoError(t, store.Record(ctx, second))

	got, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second, got[0])
	assert.Equal(t, first, got[1])

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].SessionID)
}

func TestStore_RecordReplacesSameSession(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	base := time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

	e := Entry{SessionID: "a", Shape: "square", PlanSummary: "1r × 4s", Reason: ReasonStopped,
		StartedAt: base, EndedAt: base.Add(5 * time.Second), Elapsed: 5 * time.Second, TotalLegs: 4}
	require.NoError(t, store.Record(ctx, e))
	e.Reason = ReasonReset
	require.NoError(t, store.Record(ctx, e))

	got, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ReasonReset, got[0].Reason)
}

func TestStore_RecordRejectsMissingSessionID(t *testing.T) {
	store := openTestStore(t)
	err := store.Record(context.Background(), Entry{Reason: ReasonStopped})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestStore_RecordRejectsUnknownReason(t *testing.T) {
	store := openTestStore(t)
	err := store.Record(context.Background(), Entry{SessionID: "x", Reason: "exploded"})
	assert.Error(t, err)
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	require.NoError(t, ApplyMigrations(ctx, store.db))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestStore_ReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "history.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, Entry{SessionID: "keep", Shape: "square", Reason: ReasonCompleted,
		EndedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}))
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].SessionID)
}
