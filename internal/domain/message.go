package domain

import "time"

type MessageType string

const (
	MessageOffer    MessageType = "offer"
	MessageCounter  MessageType = "counter"
	MessageAccepted MessageType = "accepted"
	MessageDeclined MessageType = "declined"
	MessageText     MessageType = "message"
)

// OfferMessage is one entry in an offer's thread. Entries are append-only
// and immutable once written; ordering is by server-assigned created_at.
type OfferMessage struct {
	ID          string      `bson:"_id" json:"id"`
	OfferID     string      `bson:"offer_id" json:"offer_id"`
	SenderID    string      `bson:"sender_id" json:"sender_id"`
	RecipientID string      `bson:"recipient_id" json:"recipient_id"`
	Type        MessageType `bson:"type" json:"type"`
	Price       *float64    `bson:"price,omitempty" json:"price,omitempty"`
	Text        string      `bson:"text,omitempty" json:"text,omitempty"`
	IsRead      bool        `bson:"is_read" json:"is_read"`
	CreatedAt   time.Time   `bson:"created_at" json:"created_at"`
}
