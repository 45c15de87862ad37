package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/toolbay/trade-service/internal/catalog"
	"github.com/toolbay/trade-service/internal/domain"
	"github.com/toolbay/trade-service/internal/repository"
	"github.com/toolbay/trade-service/internal/service"
)

type publishedOffer struct {
	Op    domain.ChangeOp
	Offer *domain.Offer
}

type publishedConv struct {
	Op   domain.ChangeOp
	Conv *domain.Conversation
}

// recorder captures announcements so tests can assert on what was
// published after each commit.
type recorder struct {
	mu     sync.Mutex
	offers []publishedOffer
	convs  []publishedConv
	audit  []service.ActivityRecord
}

func (r *recorder) PublishOffer(op domain.ChangeOp, o *domain.Offer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers = append(r.offers, publishedOffer{Op: op, Offer: o.Clone()})
}

func (r *recorder) PublishConversation(op domain.ChangeOp, c *domain.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs = append(r.convs, publishedConv{Op: op, Conv: c.Clone()})
}

func (r *recorder) Publish(ctx context.Context, key string, v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := v.(service.ActivityRecord); ok {
		r.audit = append(r.audit, rec)
	}
	return nil
}

func (r *recorder) lastOffer() publishedOffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offers[len(r.offers)-1]
}

func (r *recorder) offerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.offers)
}

func newOfferFixture(t *testing.T) (*service.OfferService, *repository.MemoryOfferStore, *recorder) {
	t.Helper()
	store := repository.NewMemoryOfferStore()
	cat := catalog.Static{
		"tool-1": &catalog.Listing{ID: "tool-1", Title: "Makita Drill", Price: 200, SellerID: "seller-1"},
	}
	rec := &recorder{}
	svc := service.NewOfferService(store, cat, rec, rec, zap.NewNop().Sugar())
	return svc, store, rec
}

func TestCreateOffer(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150, Message: "would 150 work?"})
	require.NoError(t, err)

	assert.Equal(t, domain.OfferPending, o.Status)
	assert.Equal(t, 150.0, o.CurrentPrice)
	assert.Equal(t, 200.0, o.OriginalPrice)
	assert.Equal(t, "Makita Drill", o.ToolTitle)
	assert.Equal(t, "seller-1", o.SellerID)
	assert.True(t, o.IsActive)
	assert.True(t, o.HasUnreadSeller)
	assert.False(t, o.HasUnreadBuyer)
	assert.Equal(t, int64(1), o.Revision)
	assert.Equal(t, o.CreatedAt.Add(domain.OfferTTL), o.ExpiresAt)

	msgs, err := store.Messages(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageOffer, msgs[0].Type)
	require.NotNil(t, msgs[0].Price)
	assert.Equal(t, 150.0, *msgs[0].Price)
	assert.Equal(t, "would 150 work?", msgs[0].Text)
	assert.Equal(t, "seller-1", msgs[0].RecipientID)

	last := rec.lastOffer()
	assert.Equal(t, domain.ChangeAdded, last.Op)
	assert.Equal(t, o.ID, last.Offer.ID)
}

func TestCreateOfferRejections(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newOfferFixture(t)

	var ve *domain.ValidationError
	for name, in := range map[string]service.CreateOfferInput{
		"zero price":     {ToolID: "tool-1", Price: 0},
		"negative price": {ToolID: "tool-1", Price: -10},
		"at listing":     {ToolID: "tool-1", Price: 200},
		"above listing":  {ToolID: "tool-1", Price: 250},
		"missing tool":   {Price: 100},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, "buyer-1", in)
			require.Error(t, err)
			assert.True(t, errors.As(err, &ve), "want ValidationError, got %T", err)
		})
	}

	t.Run("own listing", func(t *testing.T) {
		_, err := svc.Create(ctx, "seller-1", service.CreateOfferInput{ToolID: "tool-1", Price: 100})
		require.Error(t, err)
		assert.True(t, errors.As(err, &ve))
	})

	t.Run("unknown listing", func(t *testing.T) {
		_, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-404", Price: 100})
		require.Error(t, err)
		assert.True(t, errors.As(err, &ve))
	})
}

func TestNegotiationRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 120})
	require.NoError(t, err)

	// Seller counters up.
	o, err = svc.Counter(ctx, o.ID, "seller-1", 180, "best I can do", o.Revision)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferCountered, o.Status)
	assert.Equal(t, 180.0, o.CurrentPrice)
	assert.Equal(t, int64(2), o.Revision)
	assert.True(t, o.HasUnreadBuyer)
	assert.False(t, o.HasUnreadSeller)

	// Buyer counters down.
	o, err = svc.Counter(ctx, o.ID, "buyer-1", 160, "", o.Revision)
	require.NoError(t, err)
	assert.Equal(t, 160.0, o.CurrentPrice)
	assert.True(t, o.HasUnreadSeller)

	// Seller accepts the buyer's counter.
	o, err = svc.Accept(ctx, o.ID, "seller-1", o.Revision)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferAccepted, o.Status)
	assert.False(t, o.IsActive)
	assert.Equal(t, 160.0, o.CurrentPrice)

	// Price invariant held throughout and the thread grew by exactly one
	// entry per transition.
	assert.True(t, o.CurrentPrice > 0 && o.CurrentPrice <= o.OriginalPrice)
	msgs, err := store.Messages(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.MessageOffer, msgs[0].Type)
	assert.Equal(t, domain.MessageCounter, msgs[1].Type)
	assert.Equal(t, domain.MessageCounter, msgs[2].Type)
	assert.Equal(t, domain.MessageAccepted, msgs[3].Type)

	// Terminal: no further moves.
	var se *domain.StateError
	_, err = svc.Decline(ctx, o.ID, "buyer-1", "", o.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))
	_, err = svc.Counter(ctx, o.ID, "seller-1", 170, "", o.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))
}

func TestAcceptRoleRules(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)

	// The buyer cannot accept their own pending offer.
	var se *domain.StateError
	_, err = svc.Accept(ctx, o.ID, "buyer-1", o.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))

	var ae *domain.AuthorizationError
	_, err = svc.Accept(ctx, o.ID, "stranger", o.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &ae))

	o, err = svc.Counter(ctx, o.ID, "seller-1", 180, "", o.Revision)
	require.NoError(t, err)

	// Now the seller is the last mover and cannot accept.
	_, err = svc.Accept(ctx, o.ID, "seller-1", o.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))

	o, err = svc.Accept(ctx, o.ID, "buyer-1", o.Revision)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferAccepted, o.Status)
}

func TestCounterBoundsThroughService(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)

	var ve *domain.ValidationError
	_, err = svc.Counter(ctx, o.ID, "seller-1", 140, "", o.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &ve))

	_, err = svc.Counter(ctx, o.ID, "seller-1", 210, "", o.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &ve))

	_, err = svc.Counter(ctx, o.ID, "buyer-1", 150, "", o.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &ve))
}

func TestDeclineRecordsReason(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)

	o, err = svc.Decline(ctx, o.ID, "seller-1", "too low", o.Revision)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferDeclined, o.Status)
	assert.False(t, o.IsActive)
	assert.True(t, o.HasUnreadBuyer)

	msgs, err := store.Messages(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageDeclined, msgs[1].Type)
	assert.Equal(t, "too low", msgs[1].Text)
	assert.Nil(t, msgs[1].Price)
}

func TestCancelRules(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)

	// The seller cannot withdraw the buyer's pending offer.
	var se *domain.StateError
	_, err = svc.Cancel(ctx, o.ID, "seller-1", o.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))

	o, err = svc.Cancel(ctx, o.ID, "buyer-1", o.Revision)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferCancelled, o.Status)
	assert.False(t, o.IsActive)

	msgs, err := store.Messages(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Offer withdrawn by buyer", msgs[len(msgs)-1].Text)

	// Seller withdraws their own counter.
	o2, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)
	o2, err = svc.Counter(ctx, o2.ID, "seller-1", 180, "", o2.Revision)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, o2.ID, "buyer-1", o2.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))
	o2, err = svc.Cancel(ctx, o2.ID, "seller-1", o2.Revision)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferCancelled, o2.Status)
}

func TestStaleRevisionConflicts(t *testing.T) {
	ctx := context.Background()
	svc, _, rec := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)

	_, err = svc.Counter(ctx, o.ID, "seller-1", 180, "", o.Revision)
	require.NoError(t, err)

	published := rec.offerCount()

	// Buyer acts on the revision they saw before the counter.
	var ce *domain.ConflictError
	_, err = svc.Cancel(ctx, o.ID, "buyer-1", 1)
	require.Error(t, err)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, int64(1), ce.Expected)
	assert.Equal(t, int64(2), ce.Actual)

	// Nothing was published for the rejected attempt.
	assert.Equal(t, published, rec.offerCount())
}

func TestThreadMessageFlipsUnread(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)

	o, err = svc.SendThreadMessage(ctx, o.ID, "seller-1", "is it the 18V model?", o.Revision)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferPending, o.Status)
	assert.True(t, o.HasUnreadBuyer)
	assert.False(t, o.HasUnreadSeller)

	msgs, err := store.Messages(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageText, msgs[1].Type)

	// Terminal threads are closed to new messages.
	o, err = svc.Decline(ctx, o.ID, "seller-1", "", o.Revision)
	require.NoError(t, err)
	var se *domain.StateError
	_, err = svc.SendThreadMessage(ctx, o.ID, "buyer-1", "wait", o.Revision)
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))
}

func TestMarkReadPublishes(t *testing.T) {
	ctx := context.Background()
	svc, _, rec := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)

	got, err := svc.MarkRead(ctx, o.ID, "seller-1")
	require.NoError(t, err)
	assert.False(t, got.HasUnreadSeller)

	last := rec.lastOffer()
	assert.Equal(t, domain.ChangeUpdated, last.Op)
	assert.False(t, last.Offer.HasUnreadSeller)
}

func TestGetIsRoleScoped(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)

	for _, u := range []string{"buyer-1", "seller-1"} {
		got, err := svc.Get(ctx, o.ID, u)
		require.NoError(t, err)
		assert.Equal(t, o.ID, got.ID)
	}

	var ae *domain.AuthorizationError
	_, err = svc.Get(ctx, o.ID, "stranger")
	require.Error(t, err)
	assert.True(t, errors.As(err, &ae))

	_, err = svc.Messages(ctx, o.ID, "stranger")
	require.Error(t, err)
	assert.True(t, errors.As(err, &ae))
}

func TestAuditTrail(t *testing.T) {
	ctx := context.Background()
	svc, _, rec := newOfferFixture(t)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, o.ID, "seller-1", o.Revision)
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.audit, 2)
	assert.Equal(t, "offer_created", rec.audit[0].Type)
	assert.Equal(t, "buyer-1", rec.audit[0].ActorID)
	assert.Equal(t, "offer_accepted", rec.audit[1].Type)
	assert.Equal(t, "seller-1", rec.audit[1].ActorID)
	assert.Equal(t, "buyer-1", rec.audit[1].CounterpartID)
	assert.Equal(t, 150.0, rec.audit[1].Price)
}

func TestAcceptAnnouncesInConversation(t *testing.T) {
	ctx := context.Background()
	offerStore := repository.NewMemoryOfferStore()
	convStore := repository.NewMemoryConversationStore()
	cat := catalog.Static{"tool-1": &catalog.Listing{ID: "tool-1", Title: "Makita Drill", Price: 200, SellerID: "seller-1"}}
	rec := &recorder{}
	log := zap.NewNop().Sugar()

	convSvc := service.NewConversationService(convStore, rec, nil, log)
	svc := service.NewOfferService(offerStore, cat, rec, nil, log)
	svc.SetAnnouncer(convSvc)

	o, err := svc.Create(ctx, "buyer-1", service.CreateOfferInput{ToolID: "tool-1", Price: 150})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, o.ID, "seller-1", o.Revision)
	require.NoError(t, err)

	conv, err := convStore.FindBetween(ctx, "buyer-1", "seller-1")
	require.NoError(t, err)
	assert.Contains(t, conv.LastMessageText, "accepted at $150.00")
	assert.ElementsMatch(t, []string{"buyer-1", "seller-1"}, conv.UnreadBy)

	msgs, err := convStore.Messages(ctx, conv.ID, 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.ConversationSystem, msgs[0].Type)
}
