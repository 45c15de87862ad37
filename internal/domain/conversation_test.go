package domain

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestConversationKey(t *testing.T) {
	assert.Equal(t, ConversationKey("alice", "bob"), ConversationKey("bob", "alice"))
	assert.Equal(t, "alice:bob", ConversationKey("bob", "alice"))
	assert.NotEqual(t, ConversationKey("alice", "bob"), ConversationKey("alice", "carol"))
}

func TestNewConversation(t *testing.T) {
	c := NewConversation("bob", "alice", time.Now().UTC())
	assert.Equal(t, "alice:bob", c.ID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, c.Participants)
	assert.True(t, c.HasParticipant("alice"))
	assert.True(t, c.HasParticipant("bob"))
	assert.False(t, c.HasParticipant("carol"))
	assert.Equal(t, "bob", c.Other("alice"))
	assert.Equal(t, int64(1), c.Revision)
}

func TestStatusForDefaultsActive(t *testing.T) {
	c := NewConversation("alice", "bob", time.Now().UTC())
	assert.Equal(t, ConversationActive, c.StatusFor("alice"))

	c.Status["alice"] = ConversationArchived
	assert.Equal(t, ConversationArchived, c.StatusFor("alice"))
	assert.Equal(t, ConversationActive, c.StatusFor("bob"))
}

func TestConversationStatusValid(t *testing.T) {
	assert.True(t, ConversationActive.Valid())
	assert.True(t, ConversationArchived.Valid())
	assert.True(t, ConversationHidden.Valid())
	assert.False(t, ConversationStatus("deleted").Valid())
}

func TestTruncatePreview(t *testing.T) {
	short := "see you at noon"
	assert.Equal(t, short, TruncatePreview(short))

	exact := strings.Repeat("x", PreviewLimit)
	assert.Equal(t, exact, TruncatePreview(exact))

	long := strings.Repeat("x", PreviewLimit+1)
	got := TruncatePreview(long)
	assert.Equal(t, PreviewLimit, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("x", PreviewLimit-3), strings.TrimSuffix(got, "..."))
}

func TestTruncatePreviewMultibyte(t *testing.T) {
	long := strings.Repeat("ü", PreviewLimit+20)
	got := TruncatePreview(long)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, PreviewLimit, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestUnreadFor(t *testing.T) {
	c := NewConversation("alice", "bob", time.Now().UTC())
	assert.False(t, c.UnreadFor("alice"))

	c.UnreadBy = []string{"bob"}
	assert.True(t, c.UnreadFor("bob"))
	assert.False(t, c.UnreadFor("alice"))
}
