package domain

import (
	"strings"
	"time"
)

type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
	ConversationHidden   ConversationStatus = "hidden"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationActive, ConversationArchived, ConversationHidden:
		return true
	}
	return false
}

// PreviewLimit caps the stored last-message preview.
const PreviewLimit = 100

// Conversation is a free-form two-party channel. Its id is derived from
// the sorted participant pair, so find-or-create is a direct read and two
// concurrent first contacts converge on the same document.
type Conversation struct {
	ID              string                        `bson:"_id" json:"id"`
	Participants    []string                      `bson:"participants" json:"participants"`
	LastMessageAt   time.Time                     `bson:"last_message_at" json:"last_message_at"`
	LastMessageText string                        `bson:"last_message_text" json:"last_message_text"`
	UnreadBy        []string                      `bson:"unread_by" json:"unread_by"`
	Status          map[string]ConversationStatus `bson:"status" json:"status"`
	Revision        int64                         `bson:"revision" json:"revision"`
	CreatedAt       time.Time                     `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time                     `bson:"updated_at" json:"updated_at"`
}

// ConversationKey derives the document id from the unordered user pair.
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func NewConversation(a, b string, now time.Time) *Conversation {
	if a > b {
		a, b = b, a
	}
	return &Conversation{
		ID:           ConversationKey(a, b),
		Participants: []string{a, b},
		UnreadBy:     []string{},
		Status:       map[string]ConversationStatus{},
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Other returns the counterpart of userID, or "" if not a participant.
func (c *Conversation) Other(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

func (c *Conversation) UnreadFor(userID string) bool {
	for _, u := range c.UnreadBy {
		if u == userID {
			return true
		}
	}
	return false
}

// StatusFor defaults to active when the user never changed it.
func (c *Conversation) StatusFor(userID string) ConversationStatus {
	if s, ok := c.Status[userID]; ok {
		return s
	}
	return ConversationActive
}

func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.UnreadBy = append([]string(nil), c.UnreadBy...)
	out.Status = make(map[string]ConversationStatus, len(c.Status))
	for k, v := range c.Status {
		out.Status[k] = v
	}
	return &out
}

// TruncatePreview shortens text to at most PreviewLimit characters.
func TruncatePreview(text string) string {
	text = strings.TrimSpace(text)
	r := []rune(text)
	if len(r) <= PreviewLimit {
		return text
	}
	return string(r[:PreviewLimit-3]) + "..."
}

type ConversationMessageType string

const (
	ConversationText   ConversationMessageType = "text"
	ConversationSystem ConversationMessageType = "system"
)

// ConversationMessage is append-only and ordered by created_at.
type ConversationMessage struct {
	ID             string                  `bson:"_id" json:"id"`
	ConversationID string                  `bson:"conversation_id" json:"conversation_id"`
	SenderID       string                  `bson:"sender_id" json:"sender_id"`
	Text           string                  `bson:"text" json:"text"`
	Type           ConversationMessageType `bson:"type" json:"type"`
	CreatedAt      time.Time               `bson:"created_at" json:"created_at"`
}
