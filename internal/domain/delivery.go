package domain

import "time"

// DeliveryKind identifies what a delivery log entry audits.
type DeliveryKind string

const (
	DeliveryKindInboundSync    DeliveryKind = "inbound_sync"
	DeliveryKindInboundWebhook DeliveryKind = "inbound_webhook"
	DeliveryKindReply          DeliveryKind = "reply"
	DeliveryKindAutoReply      DeliveryKind = "auto_reply"
	DeliveryKindWebhook        DeliveryKind = "webhook"
)

// AttemptStatus is the outcome recorded for a single attempt.
type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptFailure AttemptStatus = "failure"
)

// DeliveryLog is an append-only audit record of one attempt.
type DeliveryLog struct {
	ID           int64
	TenantID     int64
	Kind         DeliveryKind
	Status       AttemptStatus
	Attempt      int
	ChannelID    *int64
	TicketID     *int64
	MessageID    *int64
	WebhookID    *int64
	StatusCode   int
	ResponseBody string
	Error        string
	Duration     time.Duration
	StartedAt    time.Time
	CreatedAt    time.Time
}
