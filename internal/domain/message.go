package domain

import "time"

// MessageType differentiates replies, internal notes and system entries.
type MessageType string

const (
	MessageTypeReply  MessageType = "reply"
	MessageTypeNote   MessageType = "note"
	MessageTypeSystem MessageType = "system"
)

// DeliveryStatus tracks the outbound state of a message.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Message is one communication unit within a ticket.
type Message struct {
	ID                int64
	TenantID          int64
	TicketID          int64
	ContactID         *int64
	Type              MessageType
	IsFromContact     bool
	IsAutoReply       bool
	Body              string
	BodyHTML          string
	RawContent        string
	ProviderMessageID *string
	DeliveryStatus    DeliveryStatus
	DeliveryError     *string
	SentAt            *time.Time
	CreatedAt         time.Time
	Attachments       []Attachment
}

// Attachment stores metadata for a file persisted alongside a message.
type Attachment struct {
	ID               int64
	TenantID         int64
	MessageID        int64
	Filename         string
	OriginalFilename string
	MimeType         string
	Size             int64
	Path             string
	ContentID        *string
	IsInline         bool
	CreatedAt        time.Time
}

// RecipientType is the address header a recipient appeared in.
type RecipientType string

const (
	RecipientTo  RecipientType = "to"
	RecipientCc  RecipientType = "cc"
	RecipientBcc RecipientType = "bcc"
)

// MessageRecipient records an addressee of an inbound email.
type MessageRecipient struct {
	ID        int64
	TenantID  int64
	MessageID int64
	Type      RecipientType
	Email     string
	Name      string
	ContactID *int64
}
