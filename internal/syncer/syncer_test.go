package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/provider"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository/memory"
	"github.com/fluxdesk/conversation-service/internal/service"
)

type fakeMailbox struct {
	mu       sync.Mutex
	emails   []provider.FetchedEmail
	err      error
	since    []time.Time
	archived []string
}

func (m *fakeMailbox) FetchSince(_ context.Context, _ *domain.Channel, since time.Time) ([]provider.FetchedEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = append(m.since, since)
	return m.emails, m.err
}

func (m *fakeMailbox) Archive(_ context.Context, _ *domain.Channel, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archived = append(m.archived, ref)
	return nil
}

type fakeIngestor struct {
	mu   sync.Mutex
	seen map[string]bool
	fail map[string]bool
}

func (f *fakeIngestor) IngestEmail(_ context.Context, _ *domain.Channel, email *domain.InboundEmail) (*service.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := email.InternetMessageID
	if f.fail[id] {
		return nil, errors.New("store unavailable")
	}
	if f.seen[id] {
		return &service.IngestResult{Duplicate: true}, nil
	}
	f.seen[id] = true
	return &service.IngestResult{Created: true}, nil
}

type syncFixture struct {
	store    *memory.Store
	mailbox  *fakeMailbox
	ingestor *fakeIngestor
	locker   *queue.MemoryLocker
	channel  domain.Channel
	now      time.Time
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := memory.New()
	store.Now = func() time.Time { return now }
	f := &syncFixture{
		store:    store,
		mailbox:  &fakeMailbox{},
		ingestor: &fakeIngestor{seen: map[string]bool{}, fail: map[string]bool{}},
		locker:   queue.NewMemoryLocker(),
		now:      now,
	}
	f.channel = store.AddChannel(domain.Channel{
		TenantID: 1, Name: "Support", Kind: domain.ChannelKindEmail, Type: domain.ChannelTypeEmail,
		Provider: domain.ProviderIMAP, IsActive: true, PostImportAction: domain.PostImportArchive,
	})
	return f
}

func (f *syncFixture) service() *Service {
	registry := provider.NewRegistry()
	registry.Register(domain.ProviderIMAP, f.mailbox)
	return New(Dependencies{
		Store:     f.store,
		Providers: registry,
		Ingestor:  f.ingestor,
		Locker:    f.locker,
		Now:       func() time.Time { return f.now },
	})
}

func fetched(ids ...string) []provider.FetchedEmail {
	out := make([]provider.FetchedEmail, 0, len(ids))
	for _, id := range ids {
		out = append(out, provider.FetchedEmail{
			Email: domain.InboundEmail{ID: id, InternetMessageID: id, FromEmail: "alice@customer.test", Subject: "hi"},
			Ref:   "uid-" + id,
		})
	}
	return out
}

func TestSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	last := now.Add(-10 * time.Minute)
	early := now.Add(-48 * time.Hour)
	late := now.Add(-5 * time.Minute)

	cases := []struct {
		name    string
		channel domain.Channel
		want    time.Time
	}{
		{"never synced", domain.Channel{}, now.Add(-24 * time.Hour)},
		{"never synced with import floor", domain.Channel{ImportSince: &late}, late},
		{"overlaps last sync", domain.Channel{LastSyncAt: &last}, last.Add(-time.Hour)},
		{"import floor below window", domain.Channel{LastSyncAt: &last, ImportSince: &early}, last.Add(-time.Hour)},
		{"import floor above window", domain.Channel{LastSyncAt: &last, ImportSince: &late}, late},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Since(&tc.channel, now))
		})
	}
}

func TestSyncChannelAdvancesWatermark(t *testing.T) {
	f := newSyncFixture(t)
	f.mailbox.emails = fetched("<a@x>", "<b@x>")
	ctx := context.Background()

	report, err := f.service().SyncChannel(ctx, 1, f.channel.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, f.now.Add(-24*time.Hour), report.Since)
	assert.Equal(t, []string{"uid-<a@x>", "uid-<b@x>"}, f.mailbox.archived)

	ch, err := f.store.Repos().Channels.Get(ctx, 1, f.channel.ID)
	require.NoError(t, err)
	require.NotNil(t, ch.LastSyncAt)
	assert.Equal(t, f.now, *ch.LastSyncAt)

	logs := f.store.DeliveryLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.DeliveryKindInboundSync, logs[0].Kind)
	assert.Equal(t, domain.AttemptSuccess, logs[0].Status)
	require.NotNil(t, logs[0].ChannelID)
	assert.Equal(t, f.channel.ID, *logs[0].ChannelID)

	f.now = f.now.Add(time.Minute)
	report, err = f.service().SyncChannel(ctx, 1, f.channel.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Duplicates)
	assert.Zero(t, report.Ingested)
	assert.Equal(t, f.now.Add(-time.Minute).Add(-time.Hour), f.mailbox.since[1])
	assert.Len(t, f.mailbox.archived, 4, "duplicates still get the post-import action")
}

func TestSyncChannelFetchFailureKeepsWatermark(t *testing.T) {
	f := newSyncFixture(t)
	last := f.now.Add(-time.Hour)
	f.channel.LastSyncAt = &last
	f.store.PutChannel(f.channel)
	f.mailbox.err = &provider.Error{Provider: domain.ProviderIMAP, Op: "login", Err: errors.New("auth failed")}
	ctx := context.Background()

	_, err := f.service().SyncChannel(ctx, 1, f.channel.ID)
	require.Error(t, err)

	ch, err := f.store.Repos().Channels.Get(ctx, 1, f.channel.ID)
	require.NoError(t, err)
	assert.Equal(t, last, *ch.LastSyncAt)
	require.NotNil(t, ch.LastSyncError)
	assert.Contains(t, *ch.LastSyncError, "auth failed")
	assert.Equal(t, 1, ch.FailureCount)

	logs := f.store.DeliveryLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, domain.AttemptFailure, logs[0].Status)
	assert.Contains(t, logs[0].Error, "auth failed")
}

func TestSyncChannelIsolatesItemFailures(t *testing.T) {
	f := newSyncFixture(t)
	f.mailbox.emails = fetched("<a@x>", "<b@x>", "<c@x>")
	f.ingestor.fail["<b@x>"] = true

	report, err := f.service().SyncChannel(context.Background(), 1, f.channel.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"uid-<a@x>", "uid-<c@x>"}, f.mailbox.archived)

	ch, err := f.store.Repos().Channels.Get(context.Background(), 1, f.channel.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now, *ch.LastSyncAt)
}

func TestSyncChannelSkipsWhenLocked(t *testing.T) {
	f := newSyncFixture(t)
	f.mailbox.emails = fetched("<a@x>")
	unlock, ok, err := f.locker.TryLock(context.Background(), lockKey(&f.channel), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock()

	report, err := f.service().SyncChannel(context.Background(), 1, f.channel.ID)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, f.mailbox.since)
	assert.Empty(t, f.store.DeliveryLogs())
}

func TestSyncChannelRejectsPushChannels(t *testing.T) {
	f := newSyncFixture(t)
	push := f.store.AddChannel(domain.Channel{TenantID: 1, Kind: domain.ChannelKindEmail, Type: domain.ChannelTypeEmail,
		Provider: domain.ProviderMicrosoft365, IsActive: true})
	inactive := f.channel
	inactive.IsActive = false
	f.store.PutChannel(inactive)

	_, err := f.service().SyncChannel(context.Background(), 1, push.ID)
	assert.True(t, domain.IsConfigError(err))
	_, err = f.service().SyncChannel(context.Background(), 1, inactive.ID)
	assert.True(t, domain.IsConfigError(err))
	_, err = f.service().SyncChannel(context.Background(), 2, push.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncAllCoversActivePullChannels(t *testing.T) {
	f := newSyncFixture(t)
	f.mailbox.emails = fetched("<a@x>")
	second := f.store.AddChannel(domain.Channel{TenantID: 2, Name: "Sales", Kind: domain.ChannelKindEmail,
		Type: domain.ChannelTypeEmail, Provider: domain.ProviderIMAP, IsActive: true})
	f.store.AddChannel(domain.Channel{TenantID: 2, Kind: domain.ChannelKindEmail, Type: domain.ChannelTypeEmail,
		Provider: domain.ProviderIMAP, IsActive: false})

	reports, err := f.service().SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, f.channel.ID, reports[0].ChannelID)
	assert.Equal(t, second.ID, reports[1].ChannelID)
	for _, r := range reports {
		assert.NoError(t, r.Err)
		assert.Equal(t, 1, r.Fetched)
	}
	assert.Len(t, f.store.DeliveryLogs(), 2)
}
