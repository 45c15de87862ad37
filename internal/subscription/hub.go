package subscription

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/toolbay/trade-service/internal/domain"
)

type View string

const (
	ViewOffersAsBuyer  View = "offers_as_buyer"
	ViewOffersAsSeller View = "offers_as_seller"
	ViewConversations  View = "conversations"
)

type Phase string

const (
	PhaseSnapshot Phase = "snapshot"
	PhaseDelta    Phase = "delta"
)

// Event is one item pushed to a subscriber: a record from the opening
// snapshot or a post-snapshot delta. Snapshot events must never be
// treated as new activity; only delta events are notification candidates.
type Event struct {
	Phase        Phase                `json:"phase"`
	View         View                 `json:"view"`
	Op           domain.ChangeOp      `json:"op"`
	Offer        *domain.Offer        `json:"offer,omitempty"`
	Conversation *domain.Conversation `json:"conversation,omitempty"`
}

// Snapshot is the full state delivered when a subscription opens.
type Snapshot struct {
	OffersAsBuyer  []*domain.Offer        `json:"offers_as_buyer"`
	OffersAsSeller []*domain.Offer        `json:"offers_as_seller"`
	Conversations  []*domain.Conversation `json:"conversations"`
}

// OfferSource and ConversationSource are the role-scoped reads that back
// the opening snapshot.
type OfferSource interface {
	ListByBuyer(ctx context.Context, userID string) ([]*domain.Offer, error)
	ListBySeller(ctx context.Context, userID string) ([]*domain.Offer, error)
}

type ConversationSource interface {
	ListByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error)
}

// Hub routes committed changes to per-user subscriptions. A change to an
// offer reaches its buyer and seller; a change to a conversation reaches
// both participants. Feeds (change-stream watchers or the event bridge)
// call the Publish methods; consumers hold Subscription handles.
type Hub struct {
	mu     sync.Mutex
	subs   map[string][]*Subscription // userID -> open subscriptions
	offers OfferSource
	convs  ConversationSource
	log    *zap.SugaredLogger
}

func NewHub(offers OfferSource, convs ConversationSource, log *zap.SugaredLogger) *Hub {
	return &Hub{
		subs:   make(map[string][]*Subscription),
		offers: offers,
		convs:  convs,
		log:    log,
	}
}

// Subscribe opens the three live views for a user. The returned handle
// carries the opening snapshot and a channel of subsequent deltas; the
// caller owns it and must Close it when its consumer goes away. Changes
// committed while the snapshot loads are buffered and replayed as deltas
// afterwards, minus any already visible in the snapshot itself, so the
// same write never shows up twice.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	sub := &Subscription{
		UserID:  userID,
		hub:     h,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		syncing: true,
	}
	h.mu.Lock()
	h.subs[userID] = append(h.subs[userID], sub)
	h.mu.Unlock()

	snap, err := h.loadSnapshot(ctx, userID)
	if err != nil {
		h.unregister(sub)
		return nil, &domain.TransientError{Op: "open subscription", Err: err}
	}

	h.mu.Lock()
	sub.snapshot = snap
	seen := snapshotRevisions(snap)
	for _, ev := range sub.pending {
		if stale(ev, seen) {
			continue
		}
		sub.push(ev, h.log)
	}
	sub.pending = nil
	sub.syncing = false
	h.mu.Unlock()
	return sub, nil
}

func (h *Hub) loadSnapshot(ctx context.Context, userID string) (Snapshot, error) {
	snap := Snapshot{
		OffersAsBuyer:  []*domain.Offer{},
		OffersAsSeller: []*domain.Offer{},
		Conversations:  []*domain.Conversation{},
	}
	buyer, err := h.offers.ListByBuyer(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrPermissionDenied) {
		return snap, err
	}
	seller, err := h.offers.ListBySeller(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrPermissionDenied) {
		return snap, err
	}
	convs, err := h.convs.ListByParticipant(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrPermissionDenied) {
		return snap, err
	}
	if buyer != nil {
		snap.OffersAsBuyer = buyer
	}
	if seller != nil {
		snap.OffersAsSeller = seller
	}
	if convs != nil {
		snap.Conversations = convs
	}
	return snap, nil
}

// PublishOffer delivers a committed offer change to both parties.
func (h *Hub) PublishOffer(op domain.ChangeOp, o *domain.Offer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliver(o.BuyerID, Event{Phase: PhaseDelta, View: ViewOffersAsBuyer, Op: op, Offer: o.Clone()})
	h.deliver(o.SellerID, Event{Phase: PhaseDelta, View: ViewOffersAsSeller, Op: op, Offer: o.Clone()})
}

// PublishConversation delivers a committed conversation change to both
// participants.
func (h *Hub) PublishConversation(op domain.ChangeOp, c *domain.Conversation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range c.Participants {
		h.deliver(p, Event{Phase: PhaseDelta, View: ViewConversations, Op: op, Conversation: c.Clone()})
	}
}

func (h *Hub) deliver(userID string, ev Event) {
	for _, sub := range h.subs[userID] {
		if sub.closed {
			continue
		}
		if sub.syncing {
			sub.pending = append(sub.pending, ev)
			continue
		}
		sub.push(ev, h.log)
	}
}

func (h *Hub) unregister(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[sub.UserID]
	for i, s := range subs {
		if s == sub {
			h.subs[sub.UserID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subs[sub.UserID]) == 0 {
		delete(h.subs, sub.UserID)
	}
	sub.closed = true
}

func snapshotRevisions(snap Snapshot) map[string]int64 {
	seen := map[string]int64{}
	for _, o := range snap.OffersAsBuyer {
		seen[o.ID] = o.Revision
	}
	for _, o := range snap.OffersAsSeller {
		seen[o.ID] = o.Revision
	}
	for _, c := range snap.Conversations {
		seen[c.ID] = c.Revision
	}
	return seen
}

// stale reports whether a buffered delta is already reflected in the
// snapshot the subscriber received.
func stale(ev Event, seen map[string]int64) bool {
	switch {
	case ev.Offer != nil:
		rev, ok := seen[ev.Offer.ID]
		return ok && ev.Offer.Revision <= rev
	case ev.Conversation != nil:
		rev, ok := seen[ev.Conversation.ID]
		return ok && ev.Conversation.Revision <= rev
	}
	return false
}
