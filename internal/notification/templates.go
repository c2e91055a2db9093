package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
)

// Template names form a closed set; resolving an unknown name fails the
// call, not the process.
const (
	TemplateNewMessage      = "newMessage"
	TemplateEventInvitation = "eventInvitation"
	TemplateBookingRequest  = "bookingRequest"
	TemplateBookingAccepted = "bookingAccepted"
	TemplateBookingDeclined = "bookingDeclined"
	TemplateNewReview       = "newReview"
	TemplateNewFollower     = "newFollower"
	TemplateEventUpdated    = "eventUpdated"
	TemplateEventReminder   = "eventReminder"
)

// Params is the superset of template inputs; each template reads only the
// fields it needs.
type Params struct {
	Recipient      uuid.UUID
	Sender         uuid.UUID
	ConversationID uuid.UUID
	EventID        uuid.UUID
	ReviewID       uuid.UUID
	EventName      string
	Preview        string
	Rating         int
	EventDate      time.Time
	Changes        []string
}

var templates = map[string]func(Params) *Notification{
	TemplateNewMessage: func(p Params) *Notification {
		msg := p.Preview
		if msg == "" {
			msg = "You have a new message"
		}
		return &Notification{
			Recipient: p.Recipient,
			Sender:    senderRef(p),
			Type:      TypeMessage,
			Title:     "New Message",
			Message:   msg,
			Data:      ConversationData{ConversationID: p.ConversationID},
			ActionURL: "/messages/" + p.ConversationID.String(),
		}
	},
	TemplateEventInvitation: func(p Params) *Notification {
		return &Notification{
			Recipient: p.Recipient,
			Sender:    senderRef(p),
			Type:      TypeEventInvitation,
			Title:     "Event Invitation",
			Message:   fmt.Sprintf("You've been invited to perform at %s", p.EventName),
			Data:      EventData{EventID: p.EventID},
			ActionURL: "/events/" + p.EventID.String(),
		}
	},
	TemplateBookingRequest: func(p Params) *Notification {
		return &Notification{
			Recipient: p.Recipient,
			Sender:    senderRef(p),
			Type:      TypeBookingRequest,
			Title:     "Booking Request",
			Message:   fmt.Sprintf("New booking request for %s", p.EventName),
			Data:      EventData{EventID: p.EventID},
			ActionURL: "/events/" + p.EventID.String(),
		}
	},
	TemplateBookingAccepted: func(p Params) *Notification {
		return &Notification{
			Recipient: p.Recipient,
			Type:      TypeBookingAccepted,
			Title:     "Booking Accepted!",
			Message:   fmt.Sprintf("Your booking for %s has been accepted", p.EventName),
			Data:      EventData{EventID: p.EventID},
			ActionURL: "/events/" + p.EventID.String(),
		}
	},
	TemplateBookingDeclined: func(p Params) *Notification {
		return &Notification{
			Recipient: p.Recipient,
			Type:      TypeBookingDeclined,
			Title:     "Booking Declined",
			Message:   fmt.Sprintf("Your booking for %s has been declined", p.EventName),
			Data:      EventData{EventID: p.EventID},
			ActionURL: "/events/" + p.EventID.String(),
		}
	},
	TemplateNewReview: func(p Params) *Notification {
		return &Notification{
			Recipient: p.Recipient,
			Sender:    senderRef(p),
			Type:      TypeNewReview,
			Title:     "New Review",
			Message:   fmt.Sprintf("You received a %d-star review", p.Rating),
			Data:      ReviewData{ReviewID: p.ReviewID},
			ActionURL: "/profile",
		}
	},
	TemplateNewFollower: func(p Params) *Notification {
		return &Notification{
			Recipient: p.Recipient,
			Sender:    senderRef(p),
			Type:      TypeNewFollower,
			Title:     "New Follower",
			Message:   "Someone started following you",
			ActionURL: "/profile",
		}
	},
	TemplateEventUpdated: func(p Params) *Notification {
		return &Notification{
			Recipient: p.Recipient,
			Type:      TypeEventUpdated,
			Title:     "Event Updated",
			Message:   fmt.Sprintf("%s has been updated", p.EventName),
			Data:      EventChangesData{EventID: p.EventID, Changes: p.Changes},
			ActionURL: "/events/" + p.EventID.String(),
		}
	},
	TemplateEventReminder: func(p Params) *Notification {
		return &Notification{
			Recipient: p.Recipient,
			Type:      TypeReminder,
			Title:     "Event Reminder",
			Message:   fmt.Sprintf("%s is starting on %s", p.EventName, p.EventDate.Format("1/2/2006")),
			Data:      ReminderData{EventID: p.EventID, EventDate: p.EventDate},
			ActionURL: "/events/" + p.EventID.String(),
			Priority:  PriorityHigh,
		}
	},
}

// Resolve turns a template name plus params into an unpersisted notification
// record.
func Resolve(template string, p Params) (*Notification, error) {
	fn, ok := templates[template]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("notification template %q not found", template))
	}
	if p.Recipient == uuid.Nil {
		return nil, apperr.Validation("notification recipient is required")
	}
	n := fn(p)
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	return n, nil
}

func senderRef(p Params) *uuid.UUID {
	if p.Sender == uuid.Nil {
		return nil
	}
	s := p.Sender
	return &s
}
