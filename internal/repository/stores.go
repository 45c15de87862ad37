package repository

import (
	"context"
	"time"

	"github.com/toolbay/trade-service/internal/domain"
)

// OfferStore persists negotiation records and their append-only threads.
// Every mutating call is one atomic unit: the summary write and the
// thread append either both land or neither does.
type OfferStore interface {
	// Create inserts a new offer together with its opening thread entry.
	Create(ctx context.Context, o *domain.Offer, msg *domain.OfferMessage) error
	Get(ctx context.Context, id string) (*domain.Offer, error)
	ListByBuyer(ctx context.Context, userID string) ([]*domain.Offer, error)
	ListBySeller(ctx context.Context, userID string) ([]*domain.Offer, error)
	// ApplyTransition writes the mutated summary and appends exactly one
	// thread entry, conditional on the stored revision still being
	// expected. Mismatch yields a ConflictError, a vanished record
	// ErrNotFound.
	ApplyTransition(ctx context.Context, o *domain.Offer, expected int64, msg *domain.OfferMessage) error
	// MarkRead clears the caller's unread flag and marks thread entries
	// addressed to them as read. Returns the updated offer.
	MarkRead(ctx context.Context, offerID, userID string) (*domain.Offer, error)
	Messages(ctx context.Context, offerID string) ([]*domain.OfferMessage, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// ConversationStore persists two-party channels and their message logs.
type ConversationStore interface {
	// GetOrCreate upserts on the deterministic pair key. The returned
	// bool is true when this call created the conversation.
	GetOrCreate(ctx context.Context, c *domain.Conversation) (*domain.Conversation, bool, error)
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	FindBetween(ctx context.Context, a, b string) (*domain.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error)
	// AppendMessage writes the updated summary and appends the message in
	// one unit, conditional on the stored revision.
	AppendMessage(ctx context.Context, c *domain.Conversation, expected int64, msg *domain.ConversationMessage) error
	// MarkRead removes exactly userID from the unread set; repeat calls
	// are no-ops. Returns the updated conversation.
	MarkRead(ctx context.Context, id, userID string) (*domain.Conversation, error)
	SetStatus(ctx context.Context, id, userID string, status domain.ConversationStatus) (*domain.Conversation, error)
	Messages(ctx context.Context, id string, limit int64, before time.Time) ([]*domain.ConversationMessage, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
}
