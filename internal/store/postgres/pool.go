// Package postgres implements the store.Store port against PostgreSQL,
// using pgx for transactional work ("FOR UPDATE SKIP LOCKED" claims)
// and lib/pq for the LISTEN/NOTIFY channel the Notifier rides on; see
// DESIGN.md for where each dependency is grounded.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements store.Store against a PostgreSQL database reachable
// at dsn. One Store is shared by every logical worker in a process; it
// owns the pool used for transactional dispatch. A separate, dedicated
// connection for WorkerTracking is obtained per-worker via
// Store.OpenTracking, so each logical worker holds one transactional
// connection plus one autocommit tracking connection.
type Store struct {
	pool    *pgxpool.Pool
	dsn     string
	channel string
}

// Option configures a Store at construction time.
type Option func(*config)

type config struct {
	maxConns      int32
	statementTO   time.Duration
	listenChannel string
}

// WithMaxConns bounds the pool's open connections. This is just an
// upper bound on total connections, not a single-writer constraint —
// Postgres handles concurrent writers natively.
func WithMaxConns(n int32) Option {
	return func(c *config) { c.maxConns = n }
}

// WithStatementTimeout sets a server-side statement_timeout applied to
// every connection in the pool, so a stuck query can never wedge a
// worker indefinitely.
func WithStatementTimeout(d time.Duration) Option {
	return func(c *config) { c.statementTO = d }
}

// WithListenChannel overrides the pub/sub channel name (default
// goals.ListenChannel).
func WithListenChannel(name string) Option {
	return func(c *config) { c.listenChannel = name }
}

// New opens a connection pool to dsn, runs all pending migrations, and
// returns a ready Store. Migrate-then-verify happens before the handle
// is returned, so callers never see a half-initialized schema.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg := config{maxConns: 10, statementTO: 30 * time.Second, listenChannel: "goals"}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := runMigrations(dsn); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.maxConns
	if cfg.statementTO > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.statementTO.Milliseconds())
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Store{pool: pool, dsn: dsn, channel: cfg.listenChannel}, nil
}

// Close releases the pool. It does not close any Tracking connections
// handed out by OpenTracking — those belong to their worker.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
