package events

import (
	"time"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket.created"
	EventTicketReopened  EventType = "ticket.reopened"
	EventMessageReceived EventType = "message.received"
	EventMessageSent     EventType = "message.sent"
	EventMessageFailed   EventType = "message.failed"
)

// AllEventTypes lists every event a subscriber can register for.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketReopened,
	EventMessageReceived,
	EventMessageSent,
	EventMessageFailed,
}

// Event represents a domain event emitted after a transaction commits.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TenantID  int64     `json:"tenant_id"`
	TicketID  int64     `json:"ticket_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketPayload describes a ticket in ticket.* events.
type TicketPayload struct {
	TicketID    int64              `json:"ticket_id"`
	Number      string             `json:"number"`
	Subject     string             `json:"subject"`
	ChannelType domain.ChannelType `json:"channel_type"`
	ChannelID   int64              `json:"channel_id"`
	ContactID   int64              `json:"contact_id"`
	StatusID    int64              `json:"status_id"`
	PriorityID  *int64             `json:"priority_id,omitempty"`
}

// MessagePayload describes a message in message.* events.
type MessagePayload struct {
	MessageID     int64                 `json:"message_id"`
	TicketID      int64                 `json:"ticket_id"`
	TicketNumber  string                `json:"ticket_number,omitempty"`
	IsFromContact bool                  `json:"is_from_contact"`
	IsAutoReply   bool                  `json:"is_auto_reply,omitempty"`
	BodyPreview   string                `json:"body_preview"`
	Status        domain.DeliveryStatus `json:"delivery_status,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// NewTicketPayload builds a TicketPayload.
func NewTicketPayload(t *domain.Ticket) TicketPayload {
	return TicketPayload{
		TicketID:    t.ID,
		Number:      t.Number,
		Subject:     t.Subject,
		ChannelType: t.ChannelType,
		ChannelID:   t.ChannelID,
		ContactID:   t.ContactID,
		StatusID:    t.StatusID,
		PriorityID:  t.PriorityID,
	}
}

// NewMessagePayload builds a MessagePayload with a bounded body preview.
func NewMessagePayload(t *domain.Ticket, m *domain.Message) MessagePayload {
	p := MessagePayload{
		MessageID:     m.ID,
		TicketID:      m.TicketID,
		IsFromContact: m.IsFromContact,
		IsAutoReply:   m.IsAutoReply,
		BodyPreview:   preview(m.Body, 200),
		Status:        m.DeliveryStatus,
	}
	if t != nil {
		p.TicketNumber = t.Number
	}
	if m.DeliveryError != nil {
		p.Error = *m.DeliveryError
	}
	return p
}

func preview(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
