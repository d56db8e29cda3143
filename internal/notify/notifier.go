// Package notify is a thin wrapper over the Store's publish/subscribe
// channel: Publish and WaitFor. Notifications are opaque wake-up
// hints; correctness never depends on their delivery. A worker that
// never receives one still makes progress by polling with SKIP
// LOCKED.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Notifier publishes to, and waits on, a single Postgres LISTEN/NOTIFY
// channel.
type Notifier struct {
	channel  string
	listener *pq.Listener
	notify   chan struct{}
}

// New opens a dedicated listener connection for channel on dsn. The
// listener reconnects automatically (pq.Listener's own behavior); a
// dropped connection during the reconnect window simply means waiters
// fall back to their poll interval until it's back.
func New(ctx context.Context, dsn, channel string) (*Notifier, error) {
	n := &Notifier{channel: channel, notify: make(chan struct{}, 1)}

	minReconnect := 10 * time.Second
	maxReconnect := time.Minute
	listener := pq.NewListener(dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		// Connection-lifecycle callback; errors here are not fatal to
		// the caller, they just mean a notification might be missed
		// until reconnect, which is fine per the polling fallback.
		_ = ev
		_ = err
	})

	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("notify: listen on %q: %w", channel, err)
	}
	n.listener = listener

	go n.pump()

	return n, nil
}

// pump drains the listener's notification channel into a
// single-slot buffered channel, coalescing bursts: dispatchers only
// care that *something* changed, not how many times.
func (n *Notifier) pump() {
	for range n.listener.Notify {
		select {
		case n.notify <- struct{}{}:
		default:
		}
	}
}

// WaitFor blocks until either a notification arrives or timeout
// elapses, whichever comes first. It never returns an error: a timeout
// is a normal outcome, not a failure, matching the blocking worker
// loop's use of it as "is there possibly new work, or should I just
// poll again."
func (n *Notifier) WaitFor(ctx context.Context, timeout time.Duration) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-n.notify:
	case <-t.C:
	case <-ctx.Done():
	}
}

// Close releases the underlying listener connection.
func (n *Notifier) Close() error {
	return n.listener.Close()
}
