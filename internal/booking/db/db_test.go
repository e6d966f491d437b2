package db_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// setupTestDB opens an in-memory SQLite database with the booking schema and
// a clock that advances one second per call, so created_at ordering is strict.
func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	t.Helper()

	bunDB, err := db.OpenSQLite(":memory:")
	require.NoError(t, err, "Failed to connect to in-memory database")
	t.Cleanup(func() { _ = bunDB.Close() })

	require.NoError(t, db.CreateSchema(context.Background(), bunDB))

	store := db.New(bunDB)
	store.Now = steppingClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return store, bunDB
}

func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func seedEvent(t *testing.T, store *db.DB, id string, total int) {
	t.Helper()
	created, err := store.Ledger().CreateEvent(context.Background(), &models.Event{ID: id, Name: "Event " + id, Total: total})
	require.NoError(t, err)
	require.True(t, created)
}
