package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/persistence"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

type seed struct {
	status, department, contact, channel int64
}

// postgresStore migrates a throwaway schema and seeds the rows tickets reference.
func postgresStore(t *testing.T) (repository.Store, seed) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	schema := "it_" + uuid.NewString()[:8]
	_, err = admin.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA %q`, schema))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), fmt.Sprintf(`DROP SCHEMA %q CASCADE`, schema))
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, persistence.RunMigrations(ctx, pool, "migrations", zap.NewNop()))

	var s seed
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO ticket_statuses (tenant_id, name, slug, is_default) VALUES (1, 'Open', 'open', TRUE) RETURNING id`).Scan(&s.status))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO departments (tenant_id, name, is_default) VALUES (1, 'Support', TRUE) RETURNING id`).Scan(&s.department))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO contacts (tenant_id, name) VALUES (1, 'Jan') RETURNING id`).Scan(&s.contact))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO channels (tenant_id, name, kind, channel_type, provider) VALUES (1, 'Inbox', 'email', 'email', 'imap') RETURNING id`).Scan(&s.channel))
	return repository.NewPostgresStore(pool), s
}

func newTicket(s seed, number string) *domain.Ticket {
	return &domain.Ticket{
		TenantID:     1,
		Number:       number,
		Subject:      "Printer",
		StatusID:     s.status,
		DepartmentID: s.department,
		ContactID:    s.contact,
		ChannelType:  domain.ChannelTypeEmail,
		ChannelID:    s.channel,
	}
}

func newMessage(ticketID int64, providerID string) *domain.Message {
	return &domain.Message{
		TenantID:          1,
		TicketID:          ticketID,
		Type:              domain.MessageTypeReply,
		IsFromContact:     true,
		Body:              "hello",
		ProviderMessageID: &providerID,
		DeliveryStatus:    domain.DeliverySent,
	}
}

func TestPostgresDuplicateProviderMessage(t *testing.T) {
	store, s := postgresStore(t)
	ctx := context.Background()
	repos := store.Repos()

	ticket := newTicket(s, "T-1")
	require.NoError(t, repos.Tickets.Create(ctx, ticket))
	require.NoError(t, repos.Messages.Create(ctx, newMessage(ticket.ID, "<a@x>")))

	err := repos.Messages.Create(ctx, newMessage(ticket.ID, "<a@x>"))
	assert.ErrorIs(t, err, domain.ErrDuplicateMessage)

	err = repos.Tickets.Create(ctx, newTicket(s, "T-1"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrDuplicateTicket)
}

func TestPostgresTicketLookupsPreferNewest(t *testing.T) {
	store, s := postgresStore(t)
	ctx := context.Background()
	repos := store.Repos()
	thread := "CONV-1"

	older := newTicket(s, "T-1")
	older.EmailThreadID = &thread
	require.NoError(t, repos.Tickets.Create(ctx, older))
	require.NoError(t, repos.Messages.Create(ctx, newMessage(older.ID, "<a@x>")))

	newer := newTicket(s, "T-2")
	newer.EmailThreadID = &thread
	require.NoError(t, repos.Tickets.Create(ctx, newer))
	require.NoError(t, repos.Messages.Create(ctx, newMessage(newer.ID, "<b@x>")))

	tickets, err := repos.Tickets.FindByProviderMessageIDs(ctx, 1, []string{"<a@x>", "<b@x>"})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, newer.ID, tickets[0].ID)
	assert.Equal(t, older.ID, tickets[1].ID)

	found, err := repos.Tickets.FindByEmailThread(ctx, 1, s.channel, thread)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)

	_, err = repos.Tickets.FindByEmailThread(ctx, 2, s.channel, thread)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresFailedSavepointKeepsTransaction(t *testing.T) {
	store, s := postgresStore(t)
	ctx := context.Background()

	var ticket *domain.Ticket
	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ticket = newTicket(s, "T-1")
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		if err := repos.Messages.Create(ctx, newMessage(ticket.ID, "<a@x>")); err != nil {
			return err
		}
		spErr := repos.Savepoint(ctx, func(ctx context.Context, sp repository.Repositories) error {
			return sp.Messages.Create(ctx, newMessage(ticket.ID, "<a@x>"))
		})
		if !assert.ErrorIs(t, spErr, domain.ErrDuplicateMessage) {
			return spErr
		}
		return repos.Messages.Create(ctx, newMessage(ticket.ID, "<b@x>"))
	})
	require.NoError(t, err)

	messages, err := store.Repos().Messages.ListByTicket(ctx, 1, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}
