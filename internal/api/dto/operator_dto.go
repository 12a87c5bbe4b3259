package dto

import (
	"time"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/syncer"
)

// DeliveryLogResponse is one audited attempt.
type DeliveryLogResponse struct {
	ID           int64                `json:"id"`
	Kind         domain.DeliveryKind  `json:"kind"`
	Status       domain.AttemptStatus `json:"status"`
	Attempt      int                  `json:"attempt"`
	TicketID     *int64               `json:"ticket_id,omitempty"`
	MessageID    *int64               `json:"message_id,omitempty"`
	WebhookID    *int64               `json:"webhook_id,omitempty"`
	StatusCode   int                  `json:"status_code,omitempty"`
	ResponseBody string               `json:"response_body,omitempty"`
	Error        string               `json:"error,omitempty"`
	DurationMS   int64                `json:"duration_ms"`
	StartedAt    time.Time            `json:"started_at"`
}

// DeliveryLogFrom maps a log entry.
func DeliveryLogFrom(l *domain.DeliveryLog) DeliveryLogResponse {
	return DeliveryLogResponse{
		ID:           l.ID,
		Kind:         l.Kind,
		Status:       l.Status,
		Attempt:      l.Attempt,
		TicketID:     l.TicketID,
		MessageID:    l.MessageID,
		WebhookID:    l.WebhookID,
		StatusCode:   l.StatusCode,
		ResponseBody: l.ResponseBody,
		Error:        l.Error,
		DurationMS:   l.Duration.Milliseconds(),
		StartedAt:    l.StartedAt,
	}
}

// SyncReportResponse summarizes a manual channel sync.
type SyncReportResponse struct {
	ChannelID  int64     `json:"channel_id"`
	Since      time.Time `json:"since"`
	Fetched    int       `json:"fetched"`
	Ingested   int       `json:"ingested"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
	Skipped    bool      `json:"skipped"`
}

// SyncReportFrom maps a sync report.
func SyncReportFrom(r syncer.Report) SyncReportResponse {
	return SyncReportResponse{
		ChannelID:  r.ChannelID,
		Since:      r.Since,
		Fetched:    r.Fetched,
		Ingested:   r.Ingested,
		Duplicates: r.Duplicates,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
	}
}
