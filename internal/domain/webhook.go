package domain

import "time"

// WebhookFormat selects how an outbound webhook payload is rendered.
type WebhookFormat string

const (
	WebhookFormatDefault WebhookFormat = "default"
	WebhookFormatSlack   WebhookFormat = "slack"
	WebhookFormatDiscord WebhookFormat = "discord"
)

// Signed reports whether payloads in this format carry an HMAC signature.
func (f WebhookFormat) Signed() bool {
	return f == "" || f == WebhookFormatDefault
}

// DefaultWebhookMaxFailures is used when a webhook has no explicit threshold.
const DefaultWebhookMaxFailures = 10

// Webhook is a tenant-registered outbound event endpoint.
type Webhook struct {
	ID           int64
	TenantID     int64
	URL          string
	Secret       string
	Format       WebhookFormat
	Events       []string
	IsActive     bool
	FailureCount int
	MaxFailures  int
	LastError    *string
	DisabledAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Threshold returns the consecutive failure count that disables the webhook.
func (w *Webhook) Threshold() int {
	if w == nil || w.MaxFailures <= 0 {
		return DefaultWebhookMaxFailures
	}
	return w.MaxFailures
}

// Subscribes reports whether the webhook listens for the event.
func (w *Webhook) Subscribes(event string) bool {
	if w == nil {
		return false
	}
	for _, e := range w.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}
