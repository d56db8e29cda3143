package goals

import "errors"

// Sentinel errors returned by the goals packages. Callers should compare
// with errors.Is, not string matching; see DESIGN.md for why error
// handling here stays stdlib-only rather than pulling in a wrapping
// library.
var (
	// ErrGoalNotFound is returned when a goal_id does not exist.
	ErrGoalNotFound = errors.New("goals: goal not found")

	// ErrUnknownHandler is returned when a goal's handler identifier has
	// no registered function. The dispatcher marks the goal CORRUPTED
	// through Store.MarkCorrupted, the same path as a non-recoverable
	// failure; the postgres store's MarkCorrupted also appends a failed
	// Progress entry carrying this error's text.
	ErrUnknownHandler = errors.New("goals: unknown handler identifier")

	// ErrAlreadyTerminal is returned by administrative operations (see
	// postgres.Store.Cancel) that attempt to mutate a goal already in
	// a terminal state, outside of an explicit retry.
	ErrAlreadyTerminal = errors.New("goals: goal is in a terminal state")

	// ErrProgressCapExceeded is wrapped by the error
	// dispatch.Dispatcher.Once returns, alongside OutcomeProgressed, when a goal's Progress
	// count reaches GOALS_MAX_PROGRESS_COUNT and it is forced into
	// GIVEN_UP. Check with errors.Is, since the commit still succeeded.
	ErrProgressCapExceeded = errors.New("goals: progress cap exceeded")
)
