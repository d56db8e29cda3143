package goals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler is the application-supplied routine that makes progress on a
// goal. It must be idempotent: it may be invoked many times for the
// same goal, across retries and across dynamic edge modification.
type Handler func(ctx context.Context, g *Goal) (Result, error)

// Result is the tagged variant a Handler returns: either AllDone or a
// RetryMeLater. Implemented as a sum type, via the unexported marker
// method, rather than an exception-based protocol.
type Result interface {
	isResult()
}

// AllDone signals the goal is complete and should become ACHIEVED.
type AllDone struct{}

func (AllDone) isResult() {}

// RetryMeLater carries the dependency-mutation and gating semantics
// for a goal that is not yet done:
//
//   - PreconditionGoals == nil: keep existing edges untouched, retry
//     immediately (subject to PreconditionDate/state recomputation).
//   - PreconditionGoals != nil and empty: clear all edges.
//   - PreconditionGoals non-empty: replace edges with this exact set.
type RetryMeLater struct {
	PreconditionGoals []uuid.UUID // nil means "untouched"; see above
	PreconditionDate  *time.Time
	Message           string
}

func (RetryMeLater) isResult() {}

// Registry is a process-wide, concurrency-safe mapping from a stable
// handler identifier to its function: polymorphism over handlers via
// a registry rather than inheritance, with handler identity persisted
// as a plain string.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register associates a stable handler identifier with a function.
// Handlers must be registered before any worker starts dispatching;
// registering the same identifier twice overwrites the previous entry.
func (r *Registry) Register(id string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = h
}

// Lookup resolves a handler identifier. ErrUnknownHandler is returned
// when the identifier has no registered function; the dispatcher
// marks that goal CORRUPTED via Store.MarkCorrupted.
func (r *Registry) Lookup(id string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, id)
	}
	return h, nil
}
