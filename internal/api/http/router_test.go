package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fluxdesk/conversation-service/internal/api/http/handlers"
	"github.com/fluxdesk/conversation-service/internal/auth"
	"github.com/fluxdesk/conversation-service/internal/delivery"
	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/observability"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository/memory"
	"github.com/fluxdesk/conversation-service/internal/syncer"
)

const channelToken = "s3cret-channel-token"

type stubSyncer struct {
	tenantID, channelID int64
	report              syncer.Report
	err                 error
}

func (s *stubSyncer) SyncChannel(_ context.Context, tenantID, channelID int64) (syncer.Report, error) {
	s.tenantID, s.channelID = tenantID, channelID
	return s.report, s.err
}

type stubRetrier struct{ err error }

func (s stubRetrier) RetryFailed(context.Context, queue.Queue, int64, int64) error { return s.err }

type apiFixture struct {
	app       *fiber.App
	store     *memory.Store
	queue     *queue.MemoryQueue
	tokens    *auth.TokenManager
	syncer    *stubSyncer
	retrier   *stubRetrier
	email     domain.Channel
	messaging domain.Channel
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	hash, err := auth.HashToken(channelToken, bcrypt.MinCost)
	require.NoError(t, err)

	f := &apiFixture{
		store:   memory.New(),
		queue:   queue.NewMemoryQueue(),
		tokens:  auth.NewTokenManager("test-secret", 5),
		syncer:  &stubSyncer{},
		retrier: &stubRetrier{},
	}
	f.email = f.store.AddChannel(domain.Channel{TenantID: 1, Name: "Support", Kind: domain.ChannelKindEmail,
		Type: domain.ChannelTypeEmail, Provider: domain.ProviderMicrosoft365, IsActive: true, InboundTokenHash: hash})
	f.messaging = f.store.AddChannel(domain.Channel{TenantID: 1, Name: "WhatsApp", Kind: domain.ChannelKindMessaging,
		Type: domain.ChannelTypeWhatsApp, Provider: domain.ProviderWhatsApp, IsActive: true, InboundTokenHash: hash})

	repos := f.store.Repos()
	f.app = fiber.New()
	RegisterMiddlewares(f.app, zap.NewNop(), observability.NewMetrics(), time.Second)
	RegisterRoutes(f.app, RouteConfig{
		Health:            handlers.NewHealthHandler("conversation-service", "test", nil),
		Inbound:           handlers.NewInboundHandler(f.queue, nil),
		Channels:          handlers.NewChannelsHandler(f.syncer, repos.DeliveryLogs),
		Webhooks:          handlers.NewWebhooksHandler(repos.Webhooks, repos.DeliveryLogs),
		Messages:          handlers.NewMessagesHandler(f.retrier, f.queue),
		AuthMiddleware:    auth.NewAuthMiddleware(f.tokens),
		ChannelMiddleware: auth.NewChannelMiddleware(repos.Channels, "channelID"),
		Metrics:           observability.NewMetrics(),
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (f *apiFixture) bearer(t *testing.T, role domain.OperatorRole) map[string]string {
	t.Helper()
	token, _, err := f.tokens.GenerateToken("op-1", domain.SubjectTypeOperator, 1, role)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

const validEmail = `{"id":"AAMk1","internet_message_id":"<m1@customer.test>","from_email":"alice@customer.test",
"from_name":"Alice","subject":"Help","body_text":"hi","to":[{"email":"support@acme.test"}]}`

func TestInboundEmailAccepted(t *testing.T) {
	f := newAPIFixture(t)
	path := "/inbound/email/" + strconv.FormatInt(f.email.ID, 10)

	resp, body := f.do(t, http.MethodPost, path, validEmail, map[string]string{auth.ChannelTokenHeader: channelToken})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["job_id"])

	jobs, _ := f.queue.Pending()
	require.Len(t, jobs, 1)
	assert.Equal(t, queue.JobInboundEmail, jobs[0].Kind)
	assert.Equal(t, int64(1), jobs[0].TenantID)
	var payload delivery.InboundEmailJob
	require.NoError(t, jobs[0].Decode(&payload))
	assert.Equal(t, f.email.ID, payload.ChannelID)
	assert.Equal(t, "m1@customer.test", payload.Email.ProviderMessageID())
}

func TestInboundRejectsBadTokens(t *testing.T) {
	f := newAPIFixture(t)
	path := "/inbound/email/" + strconv.FormatInt(f.email.ID, 10)

	resp, _ := f.do(t, http.MethodPost, path, validEmail, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, path, validEmail, map[string]string{auth.ChannelTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/inbound/email/999", validEmail, map[string]string{auth.ChannelTokenHeader: channelToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	jobs, _ := f.queue.Pending()
	assert.Empty(t, jobs)
}

func TestInboundValidatesPayload(t *testing.T) {
	f := newAPIFixture(t)
	headers := map[string]string{auth.ChannelTokenHeader: channelToken}
	emailPath := "/inbound/email/" + strconv.FormatInt(f.email.ID, 10)

	resp, body := f.do(t, http.MethodPost, emailPath, `{"id":"x","subject":"no sender"}`, headers)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	resp, _ = f.do(t, http.MethodPost, emailPath, `{"from_email":"alice@customer.test"}`, headers)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "an email needs a provider id")

	resp, _ = f.do(t, http.MethodPost, emailPath, `{not json`, headers)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, emailPath, `{"message_id":"wamid.1","sender_id":"316"}`, headers)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "messaging payloads do not satisfy the email schema")
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	messagingPath := "/inbound/messaging/" + strconv.FormatInt(f.messaging.ID, 10)
	resp, _ = f.do(t, http.MethodPost, messagingPath, `{"message_id":"wamid.1","sender_id":"316","text":"hi"}`, headers)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/inbound/messaging/"+strconv.FormatInt(f.email.ID, 10),
		`{"message_id":"wamid.2","sender_id":"316"}`, headers)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "UNPROCESSABLE", errorCode(body))

	jobs, _ := f.queue.Pending()
	require.Len(t, jobs, 1)
	assert.Equal(t, queue.JobInboundMessaging, jobs[0].Kind)
}

func TestOperatorRoutesRequireRoles(t *testing.T) {
	f := newAPIFixture(t)
	hook := f.store.AddWebhook(domain.Webhook{TenantID: 1, URL: "https://hooks.test", IsActive: false, FailureCount: 10})
	syncPath := "/api/v1/channels/" + strconv.FormatInt(f.email.ID, 10) + "/sync"
	enablePath := "/api/v1/webhooks/" + strconv.FormatInt(hook.ID, 10) + "/enable"

	resp, body := f.do(t, http.MethodPost, syncPath, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	resp, _ = f.do(t, http.MethodPost, syncPath, "", map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, syncPath, "", f.bearer(t, domain.OperatorRoleViewer))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/channels/"+strconv.FormatInt(f.email.ID, 10)+"/logs", "", f.bearer(t, domain.OperatorRoleViewer))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, enablePath, "", f.bearer(t, domain.OperatorRoleAgent))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, enablePath, "", f.bearer(t, domain.OperatorRoleAdmin))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	enabled, err := f.store.Repos().Webhooks.GetByID(context.Background(), 1, hook.ID)
	require.NoError(t, err)
	assert.True(t, enabled.IsActive)
	assert.Zero(t, enabled.FailureCount)

	resp, body = f.do(t, http.MethodGet, "/api/v1/webhooks/"+strconv.FormatInt(hook.ID, 10)+"/logs", "", f.bearer(t, domain.OperatorRoleViewer))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["data"])

	resp, _ = f.do(t, http.MethodGet, "/api/v1/webhooks/999/logs", "", f.bearer(t, domain.OperatorRoleViewer))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChannelSyncEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	path := "/api/v1/channels/" + strconv.FormatInt(f.email.ID, 10) + "/sync"
	f.syncer.report = syncer.Report{ChannelID: f.email.ID, Fetched: 3, Ingested: 2, Duplicates: 1}

	resp, body := f.do(t, http.MethodPost, path, "", f.bearer(t, domain.OperatorRoleAgent))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), f.syncer.tenantID, "the tenant comes from the token")
	assert.Equal(t, f.email.ID, f.syncer.channelID)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["ingested"])

	f.syncer.report = syncer.Report{}
	f.syncer.err = domain.NewConfigError("channel %d is not pull-based", f.email.ID)
	resp, body = f.do(t, http.MethodPost, path, "", f.bearer(t, domain.OperatorRoleAgent))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "CONFIGURATION_ERROR", errorCode(body))

	f.syncer.report = syncer.Report{ChannelID: f.email.ID}
	f.syncer.err = errors.New("fetch: connection refused")
	resp, body = f.do(t, http.MethodPost, path, "", f.bearer(t, domain.OperatorRoleAgent))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "SYNC_FAILED", errorCode(body))

	resp, _ = f.do(t, http.MethodPost, "/api/v1/channels/abc/sync", "", f.bearer(t, domain.OperatorRoleAgent))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChannelLogsAreTenantScoped(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	channelID := f.email.ID
	repos := f.store.Repos()
	require.NoError(t, repos.DeliveryLogs.Create(ctx, &domain.DeliveryLog{TenantID: 1, Kind: domain.DeliveryKindInboundSync,
		Status: domain.AttemptFailure, Attempt: 1, ChannelID: &channelID, Error: "auth failed", StartedAt: time.Now()}))
	require.NoError(t, repos.DeliveryLogs.Create(ctx, &domain.DeliveryLog{TenantID: 2, Kind: domain.DeliveryKindInboundSync,
		Status: domain.AttemptSuccess, Attempt: 1, ChannelID: &channelID, StartedAt: time.Now()}))

	resp, body := f.do(t, http.MethodGet, "/api/v1/channels/"+strconv.FormatInt(channelID, 10)+"/logs?limit=10", "",
		f.bearer(t, domain.OperatorRoleViewer))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "auth failed", items[0].(map[string]any)["error"])
}

func TestMessageRetryEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	headers := f.bearer(t, domain.OperatorRoleAgent)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/messages/7/retry", "", headers)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	f.retrier.err = delivery.ErrNotRetryable
	resp, body := f.do(t, http.MethodPost, "/api/v1/messages/7/retry", "", headers)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", errorCode(body))

	f.retrier.err = domain.ErrNotFound
	resp, _ = f.do(t, http.MethodPost, "/api/v1/messages/7/retry", "", headers)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alive", body["status"])

	resp, _ = f.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/health/live", "", map[string]string{RequestIDHeader: "req-42"})
	assert.Equal(t, "req-42", resp.Header.Get(RequestIDHeader))

	resp, body := f.do(t, http.MethodGet, "/api/v1/channels/1/logs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}
