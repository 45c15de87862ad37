package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toolbay/trade-service/internal/domain"
	"github.com/toolbay/trade-service/internal/repository"
)

// ConversationService handles the free-form two-party channels. It is
// structurally parallel to OfferService but independent of listings.
type ConversationService struct {
	repo   repository.ConversationStore
	events EventPublisher
	audit  AuditPublisher
	log    *zap.SugaredLogger
}

func NewConversationService(repo repository.ConversationStore, events EventPublisher, audit AuditPublisher, log *zap.SugaredLogger) *ConversationService {
	return &ConversationService{repo: repo, events: events, audit: audit, log: log}
}

// GetOrCreate is commutative and idempotent over the user pair: both
// orderings return the same conversation, and repeat calls never create
// duplicates.
func (s *ConversationService) GetOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error) {
	if a == "" || b == "" {
		return nil, &domain.ValidationError{Field: "participants", Reason: "two user ids required"}
	}
	if a == b {
		return nil, &domain.ValidationError{Field: "participants", Reason: "cannot open a conversation with yourself"}
	}
	conv := domain.NewConversation(a, b, time.Now().UTC())
	out, created, err := s.repo.GetOrCreate(ctx, conv)
	if err != nil {
		return nil, err
	}
	if created {
		s.events.PublishConversation(domain.ChangeAdded, out)
	}
	return out, nil
}

// FindBetween is a direct read on the derived pair key.
func (s *ConversationService) FindBetween(ctx context.Context, a, b string) (*domain.Conversation, error) {
	return s.repo.FindBetween(ctx, a, b)
}

// SendMessage appends a message and rewrites the unread set to everyone
// but the sender; a stale unread mark on the sender is cleared as a side
// effect of sending.
func (s *ConversationService) SendMessage(ctx context.Context, convID, senderID, text string, expected int64) (*domain.Conversation, *domain.ConversationMessage, error) {
	if text == "" {
		return nil, nil, &domain.ValidationError{Field: "text", Reason: "required"}
	}
	c, err := s.repo.Get(ctx, convID)
	if err != nil {
		return nil, nil, err
	}
	if !c.HasParticipant(senderID) {
		return nil, nil, &domain.AuthorizationError{ActorID: senderID, RecordID: convID}
	}
	if c.Revision != expected {
		return nil, nil, &domain.ConflictError{Expected: expected, Actual: c.Revision}
	}
	now := time.Now().UTC()
	msg := &domain.ConversationMessage{
		ID:             uuid.NewString(),
		ConversationID: convID,
		SenderID:       senderID,
		Text:           text,
		Type:           domain.ConversationText,
		CreatedAt:      now,
	}
	c.LastMessageAt = now
	c.LastMessageText = domain.TruncatePreview(text)
	c.UnreadBy = unreadAfterSend(c.Participants, senderID)
	c.UpdatedAt = now
	if err := s.repo.AppendMessage(ctx, c, expected, msg); err != nil {
		return nil, nil, err
	}
	s.events.PublishConversation(domain.ChangeUpdated, c)
	s.auditMessage(ctx, c, senderID)
	return c, msg, nil
}

// PostSystem drops a system line into the pair's conversation, creating
// it if needed. Both participants are marked unread.
func (s *ConversationService) PostSystem(ctx context.Context, a, b, text string) error {
	c, err := s.GetOrCreate(ctx, a, b)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	msg := &domain.ConversationMessage{
		ID:             uuid.NewString(),
		ConversationID: c.ID,
		SenderID:       "",
		Text:           text,
		Type:           domain.ConversationSystem,
		CreatedAt:      now,
	}
	c.LastMessageAt = now
	c.LastMessageText = domain.TruncatePreview(text)
	c.UnreadBy = append([]string(nil), c.Participants...)
	c.UpdatedAt = now
	if err := s.repo.AppendMessage(ctx, c, c.Revision, msg); err != nil {
		return err
	}
	s.events.PublishConversation(domain.ChangeUpdated, c)
	return nil
}

// MarkRead removes exactly the caller from the unread set; a repeat call
// is a no-op.
func (s *ConversationService) MarkRead(ctx context.Context, convID, userID string) (*domain.Conversation, error) {
	c, err := s.repo.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, &domain.AuthorizationError{ActorID: userID, RecordID: convID}
	}
	out, err := s.repo.MarkRead(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	s.events.PublishConversation(domain.ChangeUpdated, out)
	return out, nil
}

// SetStatus changes only the caller's view (archive/hide); the other
// participant is unaffected.
func (s *ConversationService) SetStatus(ctx context.Context, convID, userID string, status domain.ConversationStatus) (*domain.Conversation, error) {
	if !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: "must be active, archived or hidden"}
	}
	c, err := s.repo.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, &domain.AuthorizationError{ActorID: userID, RecordID: convID}
	}
	out, err := s.repo.SetStatus(ctx, convID, userID, status)
	if err != nil {
		return nil, err
	}
	s.events.PublishConversation(domain.ChangeUpdated, out)
	return out, nil
}

// List returns the caller's conversations, minus the ones they hid.
func (s *ConversationService) List(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	all, err := s.repo.ListByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.StatusFor(userID) != domain.ConversationHidden {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *ConversationService) Messages(ctx context.Context, convID, userID string, limit int64, before time.Time) ([]*domain.ConversationMessage, error) {
	c, err := s.repo.Get(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, &domain.AuthorizationError{ActorID: userID, RecordID: convID}
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.Messages(ctx, convID, limit, before)
}

func (s *ConversationService) auditMessage(ctx context.Context, c *domain.Conversation, senderID string) {
	if s.audit == nil {
		return
	}
	rec := ActivityRecord{
		Type:           "conversation_message",
		ConversationID: c.ID,
		ActorID:        senderID,
		CounterpartID:  c.Other(senderID),
		At:             time.Now().UTC(),
	}
	if err := s.audit.Publish(ctx, c.ID, rec); err != nil {
		s.log.Warnw("audit publish failed", "conversation_id", c.ID, "err", err)
	}
}

// unreadAfterSend replaces the unread set with all participants except
// the sender.
func unreadAfterSend(participants []string, senderID string) []string {
	out := []string{}
	for _, p := range participants {
		if p != senderID {
			out = append(out, p)
		}
	}
	return out
}
