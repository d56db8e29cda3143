package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
)

// TryAdvisoryLock takes a non-blocking Postgres session-level advisory
// lock identified by key, on a connection borrowed from the pool for
// the lock's lifetime (advisory locks are tied to the session that
// took them, not to a transaction). It's used to keep two copies of a
// standalone operator command — most notably killer-scan run from
// overlapping cron invocations — from running against the same
// database at once.
func (s *Store) TryAdvisoryLock(ctx context.Context, key string) (ok bool, release func(ctx context.Context) error, err error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("postgres: acquire advisory lock connection: %w", err)
	}

	id := advisoryLockID(key)
	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&acquired); err != nil {
		conn.Release()
		return false, nil, fmt.Errorf("postgres: pg_try_advisory_lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return false, nil, nil
	}

	release = func(ctx context.Context) error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, id); err != nil {
			return fmt.Errorf("postgres: pg_advisory_unlock: %w", err)
		}
		return nil
	}
	return true, release, nil
}

// advisoryLockID folds an arbitrary string key down to the int64
// pg_try_advisory_lock expects.
func advisoryLockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
