package subscription

import (
	"sync"

	"go.uber.org/zap"
)

// eventBuffer bounds how far a slow consumer may lag before deltas are
// dropped; a dropped delta is recovered by the next snapshot on
// reconnect, the same way a resumed change stream would.
const eventBuffer = 256

// Subscription is one user's live view handle. The snapshot is complete
// at the time Subscribe returned; Events carries everything after it.
// Close is idempotent and stops all further delivery.
type Subscription struct {
	UserID string

	hub      *Hub
	snapshot Snapshot
	events   chan Event
	done     chan struct{}
	once     sync.Once

	// guarded by hub.mu
	syncing bool
	pending []Event
	closed  bool
	dropped int64
}

func (s *Subscription) Snapshot() Snapshot { return s.snapshot }

func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed when the subscription is released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close releases the subscription. No events are delivered after it
// returns; the events channel is closed so range loops terminate.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unregister(s)
		close(s.done)
		close(s.events)
	})
}

// push delivers without blocking the publisher. Callers hold hub.mu, so
// a closed subscription is never pushed to.
func (s *Subscription) push(ev Event, log *zap.SugaredLogger) {
	select {
	case s.events <- ev:
	default:
		s.dropped++
		if log != nil {
			log.Warnw("subscriber lagging, delta dropped", "user_id", s.UserID, "dropped", s.dropped)
		}
	}
}
