// Package goals defines the persistent entities of the scheduling engine:
// goals, their precondition edges, progress records, and the pure state
// machine that governs transitions between them.
package goals

import (
	"time"

	"github.com/google/uuid"
)

// State is one of the eight states a Goal can occupy. See Transition
// Engine (next_state) for how a Goal moves between them.
type State string

const (
	StateBlocked                  State = "blocked"
	StateWaitingForDate           State = "waiting_for_date"
	StateWaitingForPreconditions  State = "waiting_for_preconditions"
	StateWaitingForWorker         State = "waiting_for_worker"
	StateAchieved                 State = "achieved"
	StateGivenUp                  State = "given_up"
	StateCorrupted                State = "corrupted"
	StateNotGoingToHappenSoon     State = "not_going_to_happen_soon"
)

// Terminal reports whether a state never changes again except via
// explicit administrative retry.
func (s State) Terminal() bool {
	switch s {
	case StateAchieved, StateGivenUp, StateCorrupted, StateNotGoingToHappenSoon:
		return true
	default:
		return false
	}
}

// PreconditionsMode selects how a Goal's prerequisites are combined.
type PreconditionsMode string

const (
	ModeAll PreconditionsMode = "all"
	ModeAny PreconditionsMode = "any"
)

// ListenChannel is the default name of the single pub/sub channel every
// worker listens on; GOALS_LISTEN_CHANNEL overrides it.
// Notifications are opaque wake-up hints; correctness never depends on
// their delivery (see Notifier).
const ListenChannel = "goals"

// Goal is the primary entity: a persistent unit of work dispatched to a
// registered handler once its preconditions are satisfied.
type Goal struct {
	ID                          uuid.UUID
	Handler                     string
	Args                        []byte // opaque serialized blob, passed to the handler verbatim
	Kwargs                      []byte
	State                       State
	PreconditionDate            *time.Time
	Deadline                    *time.Time
	PreconditionsMode           PreconditionsMode
	PreconditionFailuresAllowed bool
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// NewGoalID generates a fresh opaque identifier for a Goal.
func NewGoalID() uuid.UUID {
	return uuid.New()
}

// PreconditionEdge is a directed (dependent -> prerequisite) relation.
// The set has no duplicates; insertion order is irrelevant.
type PreconditionEdge struct {
	DependentID   uuid.UUID
	PrerequisiteID uuid.UUID
}

// Progress is an append-only record of one handler invocation.
type Progress struct {
	ID             int64
	GoalID         uuid.UUID
	StartedAt      time.Time
	FinishedAt     time.Time
	Success        bool
	FailureMessage string
	Traceback      string
}

// WorkerTracking is the out-of-transaction row written on a separate
// autocommit connection immediately before a handler invocation, and
// deleted before the main transaction commits. A surviving row after a
// worker dies mid-handler is what the Killer-Task Guard detects.
type WorkerTracking struct {
	WorkerID  string
	GoalID    uuid.UUID
	StartedAt time.Time
}
