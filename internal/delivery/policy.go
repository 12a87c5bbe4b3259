// Package delivery runs queued outbound sends, webhook calls and inbound
// processing under a bounded retry policy and audits every attempt.
package delivery

import (
	"time"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// MaxAttempts bounds how often a job runs before it fails terminally.
const MaxAttempts = 3

// Policy is the retry schedule for one class of delivery.
type Policy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

var policies = map[domain.DeliveryKind]Policy{
	domain.DeliveryKindReply:          {MaxAttempts, []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}},
	domain.DeliveryKindAutoReply:      {MaxAttempts, []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}},
	domain.DeliveryKindWebhook:        {MaxAttempts, []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}},
	domain.DeliveryKindInboundWebhook: {MaxAttempts, []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}},
	domain.DeliveryKindInboundSync:    {MaxAttempts, []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}},
}

// PolicyFor returns the retry policy of a delivery kind.
func PolicyFor(kind domain.DeliveryKind) Policy {
	if p, ok := policies[kind]; ok {
		return p
	}
	return policies[domain.DeliveryKindReply]
}

// Delay returns the wait before retrying after the given 1-based attempt failed.
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

// Exhausted reports whether no further attempt is allowed after attempt.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
