package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOffer(status OfferStatus) *Offer {
	now := time.Now().UTC()
	return &Offer{
		ID:            "offer-1",
		ToolID:        "tool-1",
		ToolTitle:     "Makita Drill",
		BuyerID:       "buyer-1",
		SellerID:      "seller-1",
		OriginalPrice: 200,
		CurrentPrice:  150,
		Status:        status,
		IsActive:      !status.Terminal(),
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []OfferStatus{OfferAccepted, OfferDeclined, OfferCancelled, OfferExpired, OfferCompleted} {
		assert.True(t, s.Terminal(), string(s))
	}
	for _, s := range []OfferStatus{OfferPending, OfferCountered} {
		assert.False(t, s.Terminal(), string(s))
	}
}

func TestValidateAccept(t *testing.T) {
	cases := []struct {
		name   string
		status OfferStatus
		actor  string
		ok     bool
	}{
		{"seller accepts pending", OfferPending, "seller-1", true},
		{"buyer accepts countered", OfferCountered, "buyer-1", true},
		{"buyer accepts own pending", OfferPending, "buyer-1", false},
		{"seller accepts own counter", OfferCountered, "seller-1", false},
		{"seller accepts accepted", OfferAccepted, "seller-1", false},
		{"buyer accepts declined", OfferDeclined, "buyer-1", false},
		{"seller accepts cancelled", OfferCancelled, "seller-1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := testOffer(tc.status).ValidateAccept(tc.actor)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			var se *StateError
			require.Error(t, err)
			assert.True(t, errors.As(err, &se), "want StateError, got %T", err)
		})
	}

	var ae *AuthorizationError
	err := testOffer(OfferPending).ValidateAccept("stranger")
	require.Error(t, err)
	assert.True(t, errors.As(err, &ae))
}

func TestValidateCounterBounds(t *testing.T) {
	o := testOffer(OfferPending) // current 150, original 200

	assert.NoError(t, o.ValidateCounter("seller-1", 180))
	assert.NoError(t, o.ValidateCounter("seller-1", 200))
	assert.NoError(t, o.ValidateCounter("buyer-1", 100))

	var ve *ValidationError
	for name, tc := range map[string]struct {
		actor string
		price float64
	}{
		"seller below current":  {"seller-1", 150},
		"seller under current":  {"seller-1", 120},
		"seller above original": {"seller-1", 201},
		"buyer at current":      {"buyer-1", 150},
		"buyer above current":   {"buyer-1", 160},
		"buyer zero":            {"buyer-1", 0},
		"buyer negative":        {"buyer-1", -10},
	} {
		t.Run(name, func(t *testing.T) {
			err := o.ValidateCounter(tc.actor, tc.price)
			require.Error(t, err)
			assert.True(t, errors.As(err, &ve), "want ValidationError, got %T", err)
		})
	}

	var se *StateError
	err := testOffer(OfferAccepted).ValidateCounter("seller-1", 180)
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))

	var ae *AuthorizationError
	err = o.ValidateCounter("stranger", 180)
	require.Error(t, err)
	assert.True(t, errors.As(err, &ae))
}

func TestValidateDecline(t *testing.T) {
	assert.NoError(t, testOffer(OfferPending).ValidateDecline("seller-1"))
	assert.NoError(t, testOffer(OfferPending).ValidateDecline("buyer-1"))
	assert.NoError(t, testOffer(OfferCountered).ValidateDecline("buyer-1"))

	var se *StateError
	for _, s := range []OfferStatus{OfferAccepted, OfferDeclined, OfferCancelled, OfferExpired, OfferCompleted} {
		err := testOffer(s).ValidateDecline("seller-1")
		require.Error(t, err, string(s))
		assert.True(t, errors.As(err, &se))
	}
}

func TestValidateCancel(t *testing.T) {
	assert.NoError(t, testOffer(OfferPending).ValidateCancel("buyer-1"))
	assert.NoError(t, testOffer(OfferCountered).ValidateCancel("seller-1"))

	var se *StateError
	err := testOffer(OfferPending).ValidateCancel("seller-1")
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))

	err = testOffer(OfferCountered).ValidateCancel("buyer-1")
	require.Error(t, err)
	assert.True(t, errors.As(err, &se))
}

func TestFlipUnread(t *testing.T) {
	o := testOffer(OfferPending)
	o.FlipUnread("buyer-1")
	assert.False(t, o.HasUnreadBuyer)
	assert.True(t, o.HasUnreadSeller)

	o.FlipUnread("seller-1")
	assert.True(t, o.HasUnreadBuyer)
	assert.False(t, o.HasUnreadSeller)

	assert.True(t, o.UnreadFor("buyer-1"))
	assert.False(t, o.UnreadFor("seller-1"))
	assert.False(t, o.UnreadFor("stranger"))
}

func TestCounterpart(t *testing.T) {
	o := testOffer(OfferPending)
	assert.Equal(t, "seller-1", o.Counterpart("buyer-1"))
	assert.Equal(t, "buyer-1", o.Counterpart("seller-1"))
	assert.Equal(t, "", o.Counterpart("stranger"))
}
