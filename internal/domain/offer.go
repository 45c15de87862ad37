package domain

import "time"

type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferCountered OfferStatus = "countered"
	OfferDeclined  OfferStatus = "declined"
	OfferCancelled OfferStatus = "cancelled"
	OfferExpired   OfferStatus = "expired"
	OfferCompleted OfferStatus = "completed"
)

// Terminal reports whether no further transition is permitted from s.
// Expired and completed are advisory labels; nothing in this service
// drives an offer into them, but once there it stays there.
func (s OfferStatus) Terminal() bool {
	switch s {
	case OfferAccepted, OfferDeclined, OfferCancelled, OfferExpired, OfferCompleted:
		return true
	}
	return false
}

// OfferTTL is advisory only; there is no sweep that applies "expired".
const OfferTTL = 7 * 24 * time.Hour

// Offer is the mutable negotiation summary between one buyer and one
// seller over one listing. The tool title and original price are a
// snapshot taken at creation and never re-synced.
type Offer struct {
	ID              string      `bson:"_id" json:"id"`
	ToolID          string      `bson:"tool_id" json:"tool_id"`
	ToolTitle       string      `bson:"tool_title" json:"tool_title"`
	BuyerID         string      `bson:"buyer_id" json:"buyer_id"`
	SellerID        string      `bson:"seller_id" json:"seller_id"`
	OriginalPrice   float64     `bson:"original_price" json:"original_price"`
	CurrentPrice    float64     `bson:"current_price" json:"current_price"`
	Status          OfferStatus `bson:"status" json:"status"`
	IsActive        bool        `bson:"is_active" json:"is_active"`
	HasUnreadBuyer  bool        `bson:"has_unread_buyer" json:"has_unread_buyer"`
	HasUnreadSeller bool        `bson:"has_unread_seller" json:"has_unread_seller"`
	Revision        int64       `bson:"revision" json:"revision"`
	CreatedAt       time.Time   `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `bson:"updated_at" json:"updated_at"`
	ExpiresAt       time.Time   `bson:"expires_at" json:"expires_at"`
}

func (o *Offer) IsParty(userID string) bool {
	return userID == o.BuyerID || userID == o.SellerID
}

// Counterpart returns the other party, or "" if userID is not a party.
func (o *Offer) Counterpart(userID string) string {
	switch userID {
	case o.BuyerID:
		return o.SellerID
	case o.SellerID:
		return o.BuyerID
	}
	return ""
}

func (o *Offer) UnreadFor(userID string) bool {
	switch userID {
	case o.BuyerID:
		return o.HasUnreadBuyer
	case o.SellerID:
		return o.HasUnreadSeller
	}
	return false
}

// FlipUnread marks the non-actor's side unread and clears the actor's.
func (o *Offer) FlipUnread(actorID string) {
	o.HasUnreadBuyer = actorID != o.BuyerID
	o.HasUnreadSeller = actorID != o.SellerID
}

func (o *Offer) ClearUnread(userID string) {
	if userID == o.BuyerID {
		o.HasUnreadBuyer = false
	}
	if userID == o.SellerID {
		o.HasUnreadSeller = false
	}
}

func (o *Offer) Clone() *Offer {
	c := *o
	return &c
}
