// Package storetest provides the shared setup helper for the
// postgres.Store integration suite. Tests in this package only run
// against a real database; they skip themselves when one isn't
// configured, so `go test ./...` stays green in environments with no
// Postgres available.
package storetest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/EE/goals/internal/store/postgres"
)

// envKey is the environment variable naming a disposable Postgres
// database's connection string. The suite never runs migrations
// against anything else, and never truncates tables outside of one
// it created itself.
const envKey = "GOALS_TEST_DATABASE_URL"

// Open returns a fresh, fully migrated Store for a single test and a
// cleanup func that truncates every engine table so the next test
// starts clean. It calls t.Skip when envKey is unset.
func Open(t *testing.T) (*postgres.Store, func()) {
	t.Helper()

	dsn := os.Getenv(envKey)
	if dsn == "" {
		t.Skipf("%s not set, skipping postgres integration test", envKey)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := postgres.New(ctx, dsn)
	if err != nil {
		t.Fatalf("storetest: open store: %v", err)
	}

	cleanup := func() {
		truncateCtx, truncateCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer truncateCancel()
		if err := postgres.TruncateAll(truncateCtx, st); err != nil {
			t.Errorf("storetest: truncate: %v", err)
		}
		if err := st.Close(); err != nil {
			t.Errorf("storetest: close store: %v", err)
		}
	}

	return st, cleanup
}
