package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/toolbay/trade-service/internal/domain"
	"github.com/toolbay/trade-service/internal/subscription"
)

func offerDelta(id string, unreadBuyer bool) subscription.Event {
	return subscription.Event{
		Phase: subscription.PhaseDelta,
		View:  subscription.ViewOffersAsBuyer,
		Op:    domain.ChangeUpdated,
		Offer: &domain.Offer{
			ID:             id,
			ToolTitle:      "Makita Drill",
			BuyerID:        "me",
			SellerID:       "seller-1",
			HasUnreadBuyer: unreadBuyer,
			Revision:       2,
		},
	}
}

func convDelta(id string, unreadBy ...string) subscription.Event {
	return subscription.Event{
		Phase: subscription.PhaseDelta,
		View:  subscription.ViewConversations,
		Op:    domain.ChangeUpdated,
		Conversation: &domain.Conversation{
			ID:              id,
			Participants:    []string{"me", "them"},
			LastMessageText: "hey",
			UnreadBy:        unreadBy,
			Revision:        2,
		},
	}
}

func newCenter(ttl time.Duration) *Center {
	return NewCenter("me", ttl, zap.NewNop().Sugar())
}

func TestObservePresentsUnreadDelta(t *testing.T) {
	c := newCenter(0)
	defer c.Stop()

	c.Observe(offerDelta("offer-1", true))

	n := c.Active()
	require.NotNil(t, n)
	assert.Equal(t, "offer-1", n.RecordID)
	assert.Equal(t, KindOffer, n.Kind)
	assert.Contains(t, n.Body, "Makita Drill")

	select {
	case got := <-c.Notifications():
		assert.Equal(t, n, got)
	default:
		t.Fatal("notification not emitted")
	}
}

func TestSnapshotPhaseNeverNotifies(t *testing.T) {
	c := newCenter(0)
	defer c.Stop()

	ev := offerDelta("offer-1", true)
	ev.Phase = subscription.PhaseSnapshot
	c.Observe(ev)

	assert.Nil(t, c.Active())
}

func TestReadRecordsDoNotNotify(t *testing.T) {
	c := newCenter(0)
	defer c.Stop()

	c.Observe(offerDelta("offer-1", false))
	assert.Nil(t, c.Active())

	// Unread for the other participant only.
	c.Observe(convDelta("conv-1", "them"))
	assert.Nil(t, c.Active())

	c.Observe(convDelta("conv-1", "me"))
	require.NotNil(t, c.Active())
	assert.Equal(t, KindConversation, c.Active().Kind)
}

func TestRemovalsNeverNotify(t *testing.T) {
	c := newCenter(0)
	defer c.Stop()

	ev := offerDelta("offer-1", true)
	ev.Op = domain.ChangeRemoved
	c.Observe(ev)

	assert.Nil(t, c.Active())
}

func TestSameRecordNotifiesOnce(t *testing.T) {
	c := newCenter(0)
	defer c.Stop()

	c.Observe(offerDelta("offer-1", true))
	first := c.Active()
	require.NotNil(t, first)

	c.Observe(offerDelta("offer-1", true))
	assert.Equal(t, first, c.Active())

	// Drain the channel; the repeat must not re-emit.
	<-c.Notifications()
	select {
	case n := <-c.Notifications():
		t.Fatalf("unexpected re-notification: %+v", n)
	default:
	}
}

func TestNewerRecordReplacesActive(t *testing.T) {
	c := newCenter(0)
	defer c.Stop()

	c.Observe(offerDelta("offer-1", true))
	c.Observe(convDelta("conv-1", "me"))

	n := c.Active()
	require.NotNil(t, n)
	assert.Equal(t, "conv-1", n.RecordID)

	// The unconsumed first popup was replaced, not queued.
	select {
	case got := <-c.Notifications():
		assert.Equal(t, "conv-1", got.RecordID)
	default:
		t.Fatal("notification not emitted")
	}
	select {
	case got := <-c.Notifications():
		t.Fatalf("queued popup leaked: %+v", got)
	default:
	}
}

func TestDismissKeepsRecordSeen(t *testing.T) {
	c := newCenter(0)
	defer c.Stop()

	c.Observe(offerDelta("offer-1", true))
	require.NotNil(t, c.Active())

	c.Dismiss()
	assert.Nil(t, c.Active())

	// A later delta for the dismissed record stays quiet.
	c.Observe(offerDelta("offer-1", true))
	assert.Nil(t, c.Active())
}

func TestPopupTimesOut(t *testing.T) {
	c := newCenter(20 * time.Millisecond)
	defer c.Stop()

	c.Observe(offerDelta("offer-1", true))
	require.NotNil(t, c.Active())

	assert.Eventually(t, func() bool { return c.Active() == nil }, time.Second, 10*time.Millisecond)
}

func TestReplacedPopupRestartsTimer(t *testing.T) {
	c := newCenter(50 * time.Millisecond)
	defer c.Stop()

	c.Observe(offerDelta("offer-1", true))
	time.Sleep(30 * time.Millisecond)

	// Replacing just before expiry restarts the clock for the new popup.
	c.Observe(convDelta("conv-1", "me"))
	time.Sleep(30 * time.Millisecond)
	n := c.Active()
	require.NotNil(t, n)
	assert.Equal(t, "conv-1", n.RecordID)

	assert.Eventually(t, func() bool { return c.Active() == nil }, time.Second, 10*time.Millisecond)
}
