package chat

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
	"github.com/ginuineca/ArtistSync2/internal/user"
)

func TestValidateBody(t *testing.T) {
	att := []Attachment{{ID: uuid.New(), Kind: AttachmentImage, URL: "https://cdn/a.jpg"}}

	assert.NoError(t, ValidateBody("hi", nil))
	assert.NoError(t, ValidateBody("", att))
	assert.NoError(t, ValidateBody(strings.Repeat("a", MaxContentLength), nil))

	err := ValidateBody("", nil)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	err = ValidateBody(strings.Repeat("a", MaxContentLength+1), nil)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestMessageStatus(t *testing.T) {
	sender := uuid.New()
	m := &Message{ReadBy: []ReadReceipt{{UserID: sender, ReadAt: time.Now()}}}
	assert.Equal(t, "sent", m.Status(), "only the sender's own receipt")

	m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: uuid.New(), ReadAt: time.Now()})
	assert.Equal(t, "read", m.Status())
}

func TestMessageMarshalIncludesSenderAndStatus(t *testing.T) {
	m := &Message{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		SenderID:       uuid.New(),
		Content:        "hello",
		CreatedAt:      time.Now(),
	}
	m.Sender = user.Public{ID: m.SenderID, Username: "alice", Name: "Alice"}
	m.ReadBy = []ReadReceipt{{UserID: m.SenderID, ReadAt: m.CreatedAt}}

	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, "sent", got["status"])
	sender, ok := got["sender"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", sender["username"])
}

func TestConversationRosterHelpers(t *testing.T) {
	admin := uuid.New()
	member := uuid.New()
	conv := &Conversation{
		Type: ConversationGroup,
		Participants: []Participant{
			{UserID: admin, Role: RoleAdmin},
			{UserID: member, Role: RoleMember},
		},
	}

	assert.True(t, conv.IsParticipant(admin))
	assert.True(t, conv.IsParticipant(member))
	assert.False(t, conv.IsParticipant(uuid.New()))

	assert.True(t, conv.IsAdmin(admin))
	assert.False(t, conv.IsAdmin(member))
	assert.False(t, conv.IsAdmin(uuid.New()))
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 45)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 3, p.Pages)

	p = NewPagination(1, 20, 0)
	assert.Equal(t, 0, p.Pages)

	p = NewPagination(1, 20, 20)
	assert.Equal(t, 1, p.Pages)
}
