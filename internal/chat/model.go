package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
	"github.com/ginuineca/ArtistSync2/internal/user"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// MaxContentLength bounds message bodies; longer content is rejected, never
// truncated.
const MaxContentLength = 2000

// EditWindow is how long after creation the sender may still edit a message.
const EditWindow = 15 * time.Minute

type Participant struct {
	UserID      uuid.UUID  `json:"user_id"`
	Username    string     `json:"username"`
	Name        string     `json:"name"`
	Role        Role       `json:"role"`
	JoinedAt    time.Time  `json:"joined_at"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	Muted       bool       `json:"muted"`
	UnreadCount int        `json:"-"`
}

type Conversation struct {
	ID            uuid.UUID        `json:"id"`
	Type          ConversationType `json:"type"`
	Name          string           `json:"name,omitempty"`
	Participants  []Participant    `json:"participants"`
	LastMessageID *uuid.UUID       `json:"last_message_id,omitempty"`
	LastMessage   *Message         `json:"last_message,omitempty"`
	// UnreadCount is the caller's counter, filled in by list queries.
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *Conversation) IsParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) IsAdmin(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p.Role == RoleAdmin
		}
	}
	return false
}

type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentDocument AttachmentKind = "document"
)

type Attachment struct {
	ID       uuid.UUID      `json:"id"`
	Kind     AttachmentKind `json:"kind"`
	URL      string         `json:"url"`
	Name     string         `json:"name,omitempty"`
	Size     int64          `json:"size,omitempty"`
	MimeType string         `json:"mime_type,omitempty"`
}

type ReadReceipt struct {
	UserID uuid.UUID `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

type Message struct {
	ID             uuid.UUID     `json:"id"`
	Seq            int64         `json:"-"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	SenderID       uuid.UUID     `json:"sender_id"`
	Sender         user.Public   `json:"-"`
	Content        string        `json:"content"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	ReadBy         []ReadReceipt `json:"read_by"`
	ReplyTo        *uuid.UUID    `json:"reply_to,omitempty"`
	Edited         bool          `json:"edited"`
	EditedAt       *time.Time    `json:"edited_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Status is informational; read state is derived from ReadBy, which always
// contains the sender's own receipt.
func (m *Message) Status() string {
	if len(m.ReadBy) > 1 {
		return "read"
	}
	return "sent"
}

func (m *Message) MarshalJSON() ([]byte, error) {
	type alias Message
	return json.Marshal(struct {
		*alias
		Sender user.Public `json:"sender"`
		Status string      `json:"status"`
	}{alias: (*alias)(m), Sender: m.Sender, Status: m.Status()})
}

func (m *Message) ReadByUser(userID uuid.UUID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// ValidateBody checks the content/attachment rules shared by the realtime
// and REST send paths.
func ValidateBody(content string, attachments []Attachment) error {
	if content == "" && len(attachments) == 0 {
		return apperr.Validation("message content or attachments are required")
	}
	if len(content) > MaxContentLength {
		return apperr.Validation("message content exceeds 2000 characters")
	}
	return nil
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}
