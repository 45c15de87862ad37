package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toolbay/trade-service/internal/catalog"
	"github.com/toolbay/trade-service/internal/domain"
	"github.com/toolbay/trade-service/internal/repository"
)

// EventPublisher announces committed changes. The in-process hub and the
// NATS bridge both satisfy it.
type EventPublisher interface {
	PublishOffer(op domain.ChangeOp, o *domain.Offer)
	PublishConversation(op domain.ChangeOp, c *domain.Conversation)
}

// MultiPublisher fans one announcement out to several publishers.
type MultiPublisher []EventPublisher

func (m MultiPublisher) PublishOffer(op domain.ChangeOp, o *domain.Offer) {
	for _, p := range m {
		p.PublishOffer(op, o)
	}
}

func (m MultiPublisher) PublishConversation(op domain.ChangeOp, c *domain.Conversation) {
	for _, p := range m {
		p.PublishConversation(op, c)
	}
}

// AuditPublisher records committed activity on the durable pipeline.
type AuditPublisher interface {
	Publish(ctx context.Context, key string, v interface{}) error
}

// ActivityRecord is the audit envelope written per committed mutation.
type ActivityRecord struct {
	Type           string    `json:"type"`
	OfferID        string    `json:"offer_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	ActorID        string    `json:"actor_id"`
	CounterpartID  string    `json:"counterpart_id,omitempty"`
	Price          float64   `json:"price,omitempty"`
	At             time.Time `json:"at"`
}

// Announcer drops a system line into the pair's direct conversation when
// a negotiation closes. Best effort; wired to the conversation service.
type Announcer interface {
	PostSystem(ctx context.Context, a, b, text string) error
}

type CreateOfferInput struct {
	ToolID  string
	Price   float64
	Message string
}

// OfferService layers the transition rules over the offer store. Each
// operation loads the record, validates in memory, then applies one
// atomic summary+append write conditioned on the revision the caller
// last saw.
type OfferService struct {
	repo      repository.OfferStore
	catalog   catalog.Catalog
	events    EventPublisher
	audit     AuditPublisher
	announcer Announcer
	log       *zap.SugaredLogger
}

func NewOfferService(repo repository.OfferStore, cat catalog.Catalog, events EventPublisher, audit AuditPublisher, log *zap.SugaredLogger) *OfferService {
	return &OfferService{repo: repo, catalog: cat, events: events, audit: audit, log: log}
}

// SetAnnouncer wires the conversation-side system messages; optional.
func (s *OfferService) SetAnnouncer(a Announcer) { s.announcer = a }

func (s *OfferService) Create(ctx context.Context, buyerID string, in CreateOfferInput) (*domain.Offer, error) {
	if in.ToolID == "" {
		return nil, &domain.ValidationError{Field: "tool_id", Reason: "required"}
	}
	listing, err := s.catalog.Lookup(ctx, in.ToolID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID == buyerID {
		return nil, &domain.ValidationError{Field: "tool_id", Reason: "cannot make an offer on your own listing"}
	}
	if in.Price <= 0 {
		return nil, &domain.ValidationError{Field: "price", Reason: "must be positive"}
	}
	if in.Price >= listing.Price {
		return nil, &domain.ValidationError{Field: "price", Reason: "must be below the listing price"}
	}

	now := time.Now().UTC()
	o := &domain.Offer{
		ID:              uuid.NewString(),
		ToolID:          listing.ID,
		ToolTitle:       listing.Title,
		BuyerID:         buyerID,
		SellerID:        listing.SellerID,
		OriginalPrice:   listing.Price,
		CurrentPrice:    in.Price,
		Status:          domain.OfferPending,
		IsActive:        true,
		HasUnreadSeller: true,
		Revision:        1,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(domain.OfferTTL),
	}
	price := in.Price
	msg := s.threadEntry(o, buyerID, domain.MessageOffer, &price, in.Message, now)
	if err := s.repo.Create(ctx, o, msg); err != nil {
		return nil, err
	}
	s.announce(ctx, domain.ChangeAdded, o, "offer_created", buyerID, price)
	return o, nil
}

func (s *OfferService) Accept(ctx context.Context, offerID, actorID string, expected int64) (*domain.Offer, error) {
	o, err := s.load(ctx, offerID, expected)
	if err != nil {
		return nil, err
	}
	if err := o.ValidateAccept(actorID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	o.Status = domain.OfferAccepted
	o.IsActive = false
	o.FlipUnread(actorID)
	o.UpdatedAt = now
	price := o.CurrentPrice
	msg := s.threadEntry(o, actorID, domain.MessageAccepted, &price, "", now)
	if err := s.repo.ApplyTransition(ctx, o, expected, msg); err != nil {
		return nil, err
	}
	s.announce(ctx, domain.ChangeUpdated, o, "offer_accepted", actorID, price)
	s.postSystem(ctx, o, fmt.Sprintf("Offer on %q accepted at $%.2f", o.ToolTitle, price))
	return o, nil
}

func (s *OfferService) Counter(ctx context.Context, offerID, actorID string, price float64, text string, expected int64) (*domain.Offer, error) {
	o, err := s.load(ctx, offerID, expected)
	if err != nil {
		return nil, err
	}
	if err := o.ValidateCounter(actorID, price); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	o.Status = domain.OfferCountered
	o.CurrentPrice = price
	o.FlipUnread(actorID)
	o.UpdatedAt = now
	p := price
	msg := s.threadEntry(o, actorID, domain.MessageCounter, &p, text, now)
	if err := s.repo.ApplyTransition(ctx, o, expected, msg); err != nil {
		return nil, err
	}
	s.announce(ctx, domain.ChangeUpdated, o, "offer_countered", actorID, price)
	return o, nil
}

func (s *OfferService) Decline(ctx context.Context, offerID, actorID, reason string, expected int64) (*domain.Offer, error) {
	o, err := s.load(ctx, offerID, expected)
	if err != nil {
		return nil, err
	}
	if err := o.ValidateDecline(actorID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	o.Status = domain.OfferDeclined
	o.IsActive = false
	o.FlipUnread(actorID)
	o.UpdatedAt = now
	msg := s.threadEntry(o, actorID, domain.MessageDeclined, nil, reason, now)
	if err := s.repo.ApplyTransition(ctx, o, expected, msg); err != nil {
		return nil, err
	}
	s.announce(ctx, domain.ChangeUpdated, o, "offer_declined", actorID, 0)
	s.postSystem(ctx, o, fmt.Sprintf("Offer on %q declined", o.ToolTitle))
	return o, nil
}

// Cancel is a decline restricted to the party whose move is pending,
// recorded with a distinguishing system line in the thread.
func (s *OfferService) Cancel(ctx context.Context, offerID, actorID string, expected int64) (*domain.Offer, error) {
	o, err := s.load(ctx, offerID, expected)
	if err != nil {
		return nil, err
	}
	if err := o.ValidateCancel(actorID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	o.Status = domain.OfferCancelled
	o.IsActive = false
	o.FlipUnread(actorID)
	o.UpdatedAt = now
	role := "buyer"
	if actorID == o.SellerID {
		role = "seller"
	}
	msg := s.threadEntry(o, actorID, domain.MessageDeclined, nil, "Offer withdrawn by "+role, now)
	if err := s.repo.ApplyTransition(ctx, o, expected, msg); err != nil {
		return nil, err
	}
	s.announce(ctx, domain.ChangeUpdated, o, "offer_cancelled", actorID, 0)
	return o, nil
}

// SendThreadMessage appends a free-form line to an active offer thread
// and flips the counterpart's unread flag.
func (s *OfferService) SendThreadMessage(ctx context.Context, offerID, actorID, text string, expected int64) (*domain.Offer, error) {
	if text == "" {
		return nil, &domain.ValidationError{Field: "text", Reason: "required"}
	}
	o, err := s.load(ctx, offerID, expected)
	if err != nil {
		return nil, err
	}
	if err := o.ValidateThreadMessage(actorID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	o.FlipUnread(actorID)
	o.UpdatedAt = now
	msg := s.threadEntry(o, actorID, domain.MessageText, nil, text, now)
	if err := s.repo.ApplyTransition(ctx, o, expected, msg); err != nil {
		return nil, err
	}
	s.announce(ctx, domain.ChangeUpdated, o, "offer_message", actorID, 0)
	return o, nil
}

// MarkRead clears the caller's unread flag on the offer and its thread.
// Idempotent; no revision precondition.
func (s *OfferService) MarkRead(ctx context.Context, offerID, userID string) (*domain.Offer, error) {
	o, err := s.repo.MarkRead(ctx, offerID, userID)
	if err != nil {
		return nil, err
	}
	s.events.PublishOffer(domain.ChangeUpdated, o)
	return o, nil
}

// Get is a role-scoped read: only the two parties may see an offer.
func (s *OfferService) Get(ctx context.Context, offerID, userID string) (*domain.Offer, error) {
	o, err := s.repo.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(userID) {
		return nil, &domain.AuthorizationError{ActorID: userID, RecordID: offerID}
	}
	return o, nil
}

func (s *OfferService) ListByBuyer(ctx context.Context, userID string) ([]*domain.Offer, error) {
	return s.repo.ListByBuyer(ctx, userID)
}

func (s *OfferService) ListBySeller(ctx context.Context, userID string) ([]*domain.Offer, error) {
	return s.repo.ListBySeller(ctx, userID)
}

// Messages returns the causally ordered thread for one offer.
func (s *OfferService) Messages(ctx context.Context, offerID, userID string) ([]*domain.OfferMessage, error) {
	if _, err := s.Get(ctx, offerID, userID); err != nil {
		return nil, err
	}
	return s.repo.Messages(ctx, offerID)
}

func (s *OfferService) load(ctx context.Context, offerID string, expected int64) (*domain.Offer, error) {
	o, err := s.repo.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.Revision != expected {
		return nil, &domain.ConflictError{Expected: expected, Actual: o.Revision}
	}
	return o, nil
}

func (s *OfferService) threadEntry(o *domain.Offer, actorID string, t domain.MessageType, price *float64, text string, now time.Time) *domain.OfferMessage {
	return &domain.OfferMessage{
		ID:          uuid.NewString(),
		OfferID:     o.ID,
		SenderID:    actorID,
		RecipientID: o.Counterpart(actorID),
		Type:        t,
		Price:       price,
		Text:        text,
		CreatedAt:   now,
	}
}

func (s *OfferService) announce(ctx context.Context, op domain.ChangeOp, o *domain.Offer, activity, actorID string, price float64) {
	s.events.PublishOffer(op, o)
	if s.audit == nil {
		return
	}
	rec := ActivityRecord{
		Type:          activity,
		OfferID:       o.ID,
		ActorID:       actorID,
		CounterpartID: o.Counterpart(actorID),
		Price:         price,
		At:            time.Now().UTC(),
	}
	if err := s.audit.Publish(ctx, o.ID, rec); err != nil {
		s.log.Warnw("audit publish failed", "offer_id", o.ID, "err", err)
	}
}

func (s *OfferService) postSystem(ctx context.Context, o *domain.Offer, text string) {
	if s.announcer == nil {
		return
	}
	if err := s.announcer.PostSystem(ctx, o.BuyerID, o.SellerID, text); err != nil {
		s.log.Warnw("system message failed", "offer_id", o.ID, "err", err)
	}
}
