// Package storetest provides migrated in-memory databases for tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"vaxsched/internal/store/bunstore"
	"vaxsched/internal/store/sqlite"
)

// NewDB returns a migrated in-memory SQLite database closed at test cleanup.
func NewDB(t testing.TB) *bun.DB {
	t.Helper()

	db, err := sqlite.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("sqlite.Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlite.Close(db)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := bunstore.Migrate(ctx, db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	return db
}
