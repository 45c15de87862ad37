package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/toolbay/trade-service/internal/domain"
)

// In-memory stores with the same write semantics as the Mongo ones
// (revision preconditions, atomic summary+append). They back tests and
// local development without a replica set.

type MemoryOfferStore struct {
	mu       sync.RWMutex
	offers   map[string]*domain.Offer
	messages map[string][]*domain.OfferMessage

	// Err, when set, is returned by every read; tests use it to simulate
	// permission-denied and transient store failures.
	Err error
}

func NewMemoryOfferStore() *MemoryOfferStore {
	return &MemoryOfferStore{
		offers:   make(map[string]*domain.Offer),
		messages: make(map[string][]*domain.OfferMessage),
	}
}

func (s *MemoryOfferStore) Create(ctx context.Context, o *domain.Offer, msg *domain.OfferMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.offers[o.ID] = o.Clone()
	m := *msg
	s.messages[o.ID] = append(s.messages[o.ID], &m)
	return nil
}

func (s *MemoryOfferStore) Get(ctx context.Context, id string) (*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	o, ok := s.offers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryOfferStore) ListByBuyer(ctx context.Context, userID string) ([]*domain.Offer, error) {
	return s.list(func(o *domain.Offer) bool { return o.BuyerID == userID })
}

func (s *MemoryOfferStore) ListBySeller(ctx context.Context, userID string) ([]*domain.Offer, error) {
	return s.list(func(o *domain.Offer) bool { return o.SellerID == userID })
}

func (s *MemoryOfferStore) list(match func(*domain.Offer) bool) ([]*domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []*domain.Offer{}
	for _, o := range s.offers {
		if match(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryOfferStore) ApplyTransition(ctx context.Context, o *domain.Offer, expected int64, msg *domain.OfferMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	cur, ok := s.offers[o.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Revision != expected {
		return &domain.ConflictError{Expected: expected, Actual: cur.Revision}
	}
	next := o.Clone()
	next.Revision = expected + 1
	s.offers[o.ID] = next
	o.Revision = next.Revision
	m := *msg
	s.messages[o.ID] = append(s.messages[o.ID], &m)
	return nil
}

func (s *MemoryOfferStore) MarkRead(ctx context.Context, offerID, userID string) (*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	cur, ok := s.offers[offerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !cur.IsParty(userID) {
		return nil, &domain.AuthorizationError{ActorID: userID, RecordID: offerID}
	}
	cur.ClearUnread(userID)
	cur.Revision++
	cur.UpdatedAt = time.Now().UTC()
	for _, m := range s.messages[offerID] {
		if m.RecipientID == userID {
			m.IsRead = true
		}
	}
	return cur.Clone(), nil
}

func (s *MemoryOfferStore) Messages(ctx context.Context, offerID string) ([]*domain.OfferMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	msgs := s.messages[offerID]
	out := make([]*domain.OfferMessage, 0, len(msgs))
	for _, m := range msgs {
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryOfferStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for _, o := range s.offers {
		if o.UnreadFor(userID) {
			n++
		}
	}
	return n, nil
}

type MemoryConversationStore struct {
	mu       sync.RWMutex
	convs    map[string]*domain.Conversation
	messages map[string][]*domain.ConversationMessage

	Err error
}

func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{
		convs:    make(map[string]*domain.Conversation),
		messages: make(map[string][]*domain.ConversationMessage),
	}
}

func (s *MemoryConversationStore) GetOrCreate(ctx context.Context, c *domain.Conversation) (*domain.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, false, s.Err
	}
	if cur, ok := s.convs[c.ID]; ok {
		return cur.Clone(), false, nil
	}
	s.convs[c.ID] = c.Clone()
	return c.Clone(), true, nil
}

func (s *MemoryConversationStore) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	c, ok := s.convs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryConversationStore) FindBetween(ctx context.Context, a, b string) (*domain.Conversation, error) {
	return s.Get(ctx, domain.ConversationKey(a, b))
}

func (s *MemoryConversationStore) ListByParticipant(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []*domain.Conversation{}
	for _, c := range s.convs {
		if c.HasParticipant(userID) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (s *MemoryConversationStore) AppendMessage(ctx context.Context, c *domain.Conversation, expected int64, msg *domain.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	cur, ok := s.convs[c.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Revision != expected {
		return &domain.ConflictError{Expected: expected, Actual: cur.Revision}
	}
	next := c.Clone()
	next.Revision = expected + 1
	s.convs[c.ID] = next
	c.Revision = next.Revision
	m := *msg
	s.messages[c.ID] = append(s.messages[c.ID], &m)
	return nil
}

func (s *MemoryConversationStore) MarkRead(ctx context.Context, id, userID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	cur, ok := s.convs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	kept := cur.UnreadBy[:0]
	for _, u := range cur.UnreadBy {
		if u != userID {
			kept = append(kept, u)
		}
	}
	cur.UnreadBy = kept
	cur.Revision++
	cur.UpdatedAt = time.Now().UTC()
	return cur.Clone(), nil
}

func (s *MemoryConversationStore) SetStatus(ctx context.Context, id, userID string, status domain.ConversationStatus) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	cur, ok := s.convs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if cur.Status == nil {
		cur.Status = map[string]domain.ConversationStatus{}
	}
	cur.Status[userID] = status
	cur.Revision++
	cur.UpdatedAt = time.Now().UTC()
	return cur.Clone(), nil
}

func (s *MemoryConversationStore) Messages(ctx context.Context, id string, limit int64, before time.Time) ([]*domain.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	msgs := s.messages[id]
	out := []*domain.ConversationMessage{}
	for _, m := range msgs {
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		c := *m
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[int64(len(out))-limit:]
	}
	return out, nil
}

func (s *MemoryConversationStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for _, c := range s.convs {
		if c.UnreadFor(userID) {
			n++
		}
	}
	return n, nil
}
