package delivery

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/events"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

// Outbound webhook request headers.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

var errWebhookInactive = errors.New("webhook is inactive")

// WebhookJob is the payload of a queue.JobWebhook job.
type WebhookJob struct {
	WebhookID int64           `json:"webhook_id"`
	EventID   string          `json:"event_id"`
	Event     string          `json:"event"`
	TicketID  int64           `json:"ticket_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// WebhookSender posts event payloads to tenant webhooks.
type WebhookSender struct {
	store     repository.Store
	client    *http.Client
	userAgent string
	logger    *zap.Logger
	now       func() time.Time
}

// WebhookSenderDependencies bundles WebhookSender collaborators.
type WebhookSenderDependencies struct {
	Store     repository.Store
	Client    *http.Client
	UserAgent string
	Logger    *zap.Logger
	Now       func() time.Time
}

// NewWebhookSender creates a WebhookSender.
func NewWebhookSender(deps WebhookSenderDependencies) *WebhookSender {
	s := &WebhookSender{
		store:     deps.Store,
		client:    deps.Client,
		userAgent: deps.UserAgent,
		logger:    deps.Logger,
		now:       deps.Now,
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 10 * time.Second}
	}
	if s.userAgent == "" {
		s.userAgent = "conversation-service-webhooks/1.0"
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Handle performs one POST of the webhook payload.
func (s *WebhookSender) Handle(ctx context.Context, job *queue.Job) Result {
	kind := domain.DeliveryKindWebhook
	var payload WebhookJob
	if err := job.Decode(&payload); err != nil {
		return Terminal(kind, err)
	}
	res := Result{Kind: kind, WebhookID: &payload.WebhookID}
	if payload.TicketID != 0 {
		res.TicketID = &payload.TicketID
	}

	hook, err := s.store.Repos().Webhooks.GetByID(ctx, job.TenantID, payload.WebhookID)
	if errors.Is(err, domain.ErrNotFound) {
		return fail(res, TerminalFailure, errWebhookInactive)
	}
	if err != nil {
		return fail(res, RetryableFailure, err)
	}
	if !hook.IsActive {
		return fail(res, TerminalFailure, errWebhookInactive)
	}

	body, err := renderWebhook(hook, payload)
	if err != nil {
		return fail(res, TerminalFailure, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fail(res, TerminalFailure, domain.NewConfigError("invalid webhook url: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	if hook.Format.Signed() {
		req.Header.Set(HeaderEvent, payload.Event)
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(s.now().Unix(), 10))
		req.Header.Set(HeaderSignature, Sign(hook.Secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(res, RetryableFailure, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4*repository.MaxResponseBodyLength))
	res.StatusCode = resp.StatusCode
	res.ResponseBody = string(respBody)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if hook.FailureCount > 0 {
			if err := s.store.Repos().Webhooks.RecordSuccess(ctx, hook.TenantID, hook.ID); err != nil {
				s.logger.Warn("reset webhook failures", zap.Int64("webhook_id", hook.ID), zap.Error(err))
			}
		}
		res.Outcome = Success
		return res
	}
	statusErr := fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if retryableStatus(resp.StatusCode) {
		return fail(res, RetryableFailure, statusErr)
	}
	return fail(res, TerminalFailure, statusErr)
}

// retryableStatus treats server errors, timeouts and rate limiting as transient.
func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// Fail counts the failure and disables the webhook at its threshold.
func (s *WebhookSender) Fail(ctx context.Context, job *queue.Job, res Result) {
	if res.WebhookID == nil || errors.Is(res.Err, errWebhookInactive) {
		return
	}
	hook, err := s.store.Repos().Webhooks.RecordFailure(ctx, job.TenantID, *res.WebhookID, errText(res.Err))
	if err != nil {
		s.logger.Error("record webhook failure", zap.Int64("webhook_id", *res.WebhookID), zap.Error(err))
		return
	}
	if !hook.IsActive {
		s.logger.Warn("webhook disabled after consecutive failures",
			zap.Int64("tenant_id", hook.TenantID),
			zap.Int64("webhook_id", hook.ID),
			zap.Int("failures", hook.FailureCount),
		)
	}
}

// WebhookFanout turns domain events into webhook jobs for every subscribed webhook.
type WebhookFanout struct {
	store  repository.Store
	queue  queue.Queue
	logger *zap.Logger
	now    func() time.Time
}

// NewWebhookFanout creates a WebhookFanout.
func NewWebhookFanout(store repository.Store, q queue.Queue, logger *zap.Logger) *WebhookFanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookFanout{store: store, queue: q, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Register subscribes the fanout to every event type.
func (f *WebhookFanout) Register(d events.Dispatcher) {
	events.SubscribeAll(d, f.Handle)
}

// Handle enqueues one job per active webhook subscribed to the event.
func (f *WebhookFanout) Handle(ctx context.Context, event events.Event) error {
	hooks, err := f.store.Repos().Webhooks.ListActiveForEvent(ctx, event.TenantID, string(event.Type))
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}
	if len(hooks) == 0 {
		return nil
	}
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	var errs []error
	for _, hook := range hooks {
		job, err := queue.NewJob(queue.JobWebhook, event.TenantID, WebhookJob{
			WebhookID: hook.ID,
			EventID:   event.ID,
			Event:     string(event.Type),
			TicketID:  event.TicketID,
			Timestamp: event.Timestamp,
			Data:      data,
		})
		if err == nil {
			err = f.queue.Enqueue(ctx, job, f.now())
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("webhook %d: %w", hook.ID, err))
		}
	}
	return errors.Join(errs...)
}
