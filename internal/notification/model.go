package notification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeMessage         Type = "message"
	TypeEventInvitation Type = "event_invitation"
	TypeBookingRequest  Type = "booking_request"
	TypeBookingAccepted Type = "booking_accepted"
	TypeBookingDeclined Type = "booking_declined"
	TypeNewReview       Type = "new_review"
	TypeNewFollower     Type = "new_follower"
	TypeEventUpdated    Type = "event_updated"
	TypeReminder        Type = "reminder"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Payload is the typed per-template data attached to a notification. Each
// type carries only the fields its template needs; the union is closed.
type Payload interface {
	isPayload()
}

type ConversationData struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

type EventData struct {
	EventID uuid.UUID `json:"eventId"`
}

type EventChangesData struct {
	EventID uuid.UUID `json:"eventId"`
	Changes []string  `json:"changes,omitempty"`
}

type ReviewData struct {
	ReviewID uuid.UUID `json:"reviewId"`
}

type ReminderData struct {
	EventID   uuid.UUID `json:"eventId"`
	EventDate time.Time `json:"eventDate"`
}

func (ConversationData) isPayload() {}
func (EventData) isPayload()        {}
func (EventChangesData) isPayload() {}
func (ReviewData) isPayload()       {}
func (ReminderData) isPayload()     {}

// decodePayload rehydrates the stored JSON into the variant for the
// notification's type. new_follower notifications carry no data.
func decodePayload(t Type, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch t {
	case TypeMessage:
		var p ConversationData
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeEventInvitation, TypeBookingRequest, TypeBookingAccepted, TypeBookingDeclined:
		var p EventData
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeEventUpdated:
		var p EventChangesData
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeNewReview:
		var p ReviewData
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeReminder:
		var p ReminderData
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case TypeNewFollower:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown notification type %q", t)
	}
}

type Notification struct {
	ID        uuid.UUID  `json:"id"`
	Recipient uuid.UUID  `json:"recipient"`
	Sender    *uuid.UUID `json:"sender,omitempty"`
	Type      Type       `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Data      Payload    `json:"data,omitempty"`
	ActionURL string     `json:"action_url,omitempty"`
	Priority  Priority   `json:"priority"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}
