package notify

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/toolbay/trade-service/internal/domain"
	"github.com/toolbay/trade-service/internal/subscription"
)

type Kind string

const (
	KindOffer        Kind = "offer"
	KindConversation Kind = "conversation"
)

// Notification is one surfaced popup.
type Notification struct {
	RecordID  string    `json:"record_id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Center turns post-snapshot deltas into popups for one user. It keeps a
// set of record ids it has already surfaced, so repeated deltas for the
// same underlying record do not stack, and it holds at most one active
// notification: a newer one replaces the current, it never queues.
type Center struct {
	mu     sync.Mutex
	userID string
	seen   map[string]struct{}
	active *Notification
	timer  *time.Timer
	ttl    time.Duration
	out    chan *Notification
	log    *zap.SugaredLogger
}

func NewCenter(userID string, ttl time.Duration, log *zap.SugaredLogger) *Center {
	return &Center{
		userID: userID,
		seen:   make(map[string]struct{}),
		ttl:    ttl,
		out:    make(chan *Notification, 1),
		log:    log,
	}
}

// Notifications yields each newly surfaced popup. The channel holds one
// element; an unconsumed popup is replaced by the next.
func (c *Center) Notifications() <-chan *Notification { return c.out }

// Observe feeds one subscription event through the gate. Snapshot-phase
// events and removals never notify; delta adds and updates notify once
// per record, and only while the record is unread for this user.
func (c *Center) Observe(ev subscription.Event) {
	if ev.Phase != subscription.PhaseDelta || ev.Op == domain.ChangeRemoved {
		return
	}
	n := c.build(ev)
	if n == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[n.RecordID]; ok {
		return
	}
	c.seen[n.RecordID] = struct{}{}
	c.present(n)
}

func (c *Center) build(ev subscription.Event) *Notification {
	switch {
	case ev.Offer != nil:
		if !ev.Offer.UnreadFor(c.userID) {
			return nil
		}
		return &Notification{
			RecordID:  ev.Offer.ID,
			Kind:      KindOffer,
			Title:     "Offer activity",
			Body:      fmt.Sprintf("New activity on %q", ev.Offer.ToolTitle),
			CreatedAt: time.Now().UTC(),
		}
	case ev.Conversation != nil:
		if !ev.Conversation.UnreadFor(c.userID) {
			return nil
		}
		return &Notification{
			RecordID:  ev.Conversation.ID,
			Kind:      KindConversation,
			Title:     "New message",
			Body:      ev.Conversation.LastMessageText,
			CreatedAt: time.Now().UTC(),
		}
	}
	return nil
}

// present replaces the active popup and restarts the dismissal timer.
// Caller holds c.mu.
func (c *Center) present(n *Notification) {
	c.active = n
	if c.timer != nil {
		c.timer.Stop()
	}
	if c.ttl > 0 {
		c.timer = time.AfterFunc(c.ttl, func() { c.expire(n) })
	}
	// replace an unconsumed popup rather than queueing behind it
	select {
	case <-c.out:
	default:
	}
	select {
	case c.out <- n:
	default:
	}
	if c.log != nil {
		c.log.Debugw("notification presented", "user_id", c.userID, "record_id", n.RecordID, "kind", n.Kind)
	}
}

// expire clears the popup only if it is still the active one.
func (c *Center) expire(n *Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == n {
		c.active = nil
	}
}

// Dismiss clears the current popup. The record stays in the seen set, so
// dismissing does not re-arm the same record.
func (c *Center) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Active returns the currently presented popup, if any.
func (c *Center) Active() *Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Stop releases the dismissal timer.
func (c *Center) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
