// Package store defines the persistence port the engine depends on.
// The concrete implementation (internal/store/postgres) is the only
// place that knows about SQL, SKIP LOCKED, or the LISTEN/NOTIFY
// channel; everything above this package works in terms of goals.Goal
// and the pure goals.NextState function.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/EE/goals/internal/goals"
)

// ScheduleParams mirrors the external schedule(...) API.
type ScheduleParams struct {
	Handler                     string
	Args                        []byte
	Kwargs                      []byte
	PreconditionDate            *time.Time
	PreconditionGoals           []uuid.UUID
	PreconditionsMode           goals.PreconditionsMode
	PreconditionFailuresAllowed bool
	Deadline                    *time.Time
	Blocked                     bool
}

// GoalTx is an open transaction holding a row-level lock ("FOR UPDATE
// SKIP LOCKED") on exactly one goal, acquired by Store.ClaimReadyWork.
// Every method operates within that single transaction; Commit or
// Rollback must be called exactly once, and no method may be called
// afterward.
type GoalTx interface {
	goals.ResolverStore

	// Goal returns the locked goal's current row.
	Goal() *goals.Goal

	// AppendProgress inserts one Progress row and returns the goal's
	// new total Progress count.
	AppendProgress(ctx context.Context, p goals.Progress) (count int, err error)

	// SetState writes the goal's state column.
	SetState(ctx context.Context, s goals.State) error

	// ReplacePreconditions implements the three PreconditionGoals cases:
	// nil leaves edges untouched (never call this method in that
	// case), a non-nil empty slice clears them, and a non-empty slice
	// replaces them wholesale.
	ReplacePreconditions(ctx context.Context, prerequisiteIDs []uuid.UUID) error

	// SetPreconditionDate sets or clears the precondition_date gate.
	SetPreconditionDate(ctx context.Context, t *time.Time) error

	// Prerequisites returns the locked goal's own PrereqStates, as
	// NextState needs them.
	Prerequisites(ctx context.Context) (goals.PrereqStates, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Tracking is a dedicated, autocommit connection to the WorkerTracking
// table. Start must commit immediately and before handler invocation;
// Stop must be called before the caller's main transaction commits, not
// after.
type Tracking interface {
	Start(ctx context.Context, workerID string, goalID uuid.UUID) error
	Stop(ctx context.Context, workerID string, goalID uuid.UUID) error
	Close(ctx context.Context) error
}

// ClaimOutcome is the result of one claim attempt: either nothing was
// ready (Found == false) or Tx holds an open, row-locked transaction
// that the caller must Commit or Rollback.
type ClaimOutcome struct {
	Found bool
	Tx    GoalTx
}

// Store is the persistence port the dispatcher, killer guard, and
// retention sweeper depend on.
type Store interface {
	// Schedule creates a goal and its PreconditionEdge set atomically
	// and computes its initial state with goals.NextState.
	Schedule(ctx context.Context, p ScheduleParams) (uuid.UUID, error)

	// ClaimReadyWork runs the claim query:
	//
	//	SELECT ... FROM goals
	//	WHERE state = WAITING_FOR_WORKER
	//	  AND (deadline IS NOT NULL AND deadline <= now + horizon WHEN horizon is set)
	//	ORDER BY precondition_date NULLS FIRST, created_at
	//	LIMIT 1 FOR UPDATE SKIP LOCKED
	//
	// and opens a transaction holding the row lock on the winning goal,
	// if any. A nil horizon means no deadline filtering; with a horizon
	// set, goals with a NULL deadline are never claimed.
	ClaimReadyWork(ctx context.Context, horizon *time.Duration) (ClaimOutcome, error)

	// MarkCorrupted is the side-connection path used when the main
	// transaction cannot be used to record a failure: it rolls back
	// the caller's own transaction first, then calls this on a
	// separate connection.
	MarkCorrupted(ctx context.Context, goalID uuid.UUID, note string) error

	// OpenTracking hands back a dedicated, autocommit connection for
	// the out-of-transaction WorkerTracking table. A worker calls this
	// once at startup and keeps the result for its entire lifetime,
	// separate from the pool used for transactional dispatch.
	OpenTracking(ctx context.Context) (Tracking, error)

	// TrackingCounts groups WorkerTracking rows by goal_id and returns
	// the distinct started_at count per goal, for the Killer-Task Guard.
	TrackingCounts(ctx context.Context) (map[uuid.UUID]int, error)

	// MarkCorruptedByKiller marks a goal CORRUPTED and deletes its
	// tracking rows, outside any goal transaction.
	MarkCorruptedByKiller(ctx context.Context, goalID uuid.UUID) error

	// SweepRetention deletes ACHIEVED goals with updated_at before
	// cutoff that are not referenced by any non-terminal goal. It
	// returns how many were deleted and how many were skipped because
	// a referent still exists.
	SweepRetention(ctx context.Context, cutoff time.Time) (deleted, skipped int, err error)

	// GetGoal is a convenience read used by tests and administrative
	// tooling.
	GetGoal(ctx context.Context, id uuid.UUID) (*goals.Goal, error)

	// Publish sends a NOTIFY on the engine's shared channel. Called
	// once per dispatcher iteration after its transaction commits; that
	// one notification also covers any goals a Resolver cascade made
	// dispatchable in the same transaction. The payload is ignored by
	// convention.
	Publish(ctx context.Context) error

	// TryAdvisoryLock attempts to take a non-blocking, session-scoped
	// lock identified by key, so two processes sharing a database
	// never run the same exclusive operation (e.g. a standalone
	// killer-scan invocation) at once. ok is false if another session
	// already holds it. Call release only when ok is true.
	TryAdvisoryLock(ctx context.Context, key string) (ok bool, release func(ctx context.Context) error, err error)

	Close() error
}
