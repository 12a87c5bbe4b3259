package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

const uniqueViolation = "23505"

// DBTX is satisfied by both the pool and a transaction. Begin on a
// transaction opens a savepoint.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SavepointFunc runs fn in a nested unit of work of the current one.
type SavepointFunc func(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error

// Repositories bundles every repository bound to one connection or transaction.
type Repositories struct {
	Tickets      TicketRepository
	Messages     MessageRepository
	Attachments  AttachmentRepository
	Recipients   RecipientRepository
	Contacts     ContactRepository
	Companies    CompanyRepository
	Lookups      LookupRepository
	Channels     ChannelRepository
	Webhooks     WebhookRepository
	DeliveryLogs DeliveryLogRepository

	// Savepoints is set by the Store that built the bundle.
	Savepoints SavepointFunc
}

// Savepoint runs fn so that its failure, including a failed statement, rolls
// back only fn's work and leaves the enclosing transaction usable.
func (r Repositories) Savepoint(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	if r.Savepoints == nil {
		return fn(ctx, r)
	}
	return r.Savepoints(ctx, fn)
}

// Store hands out repositories and runs units of work atomically.
type Store interface {
	Repos() Repositories
	// WithinTx runs fn in a transaction; a non-nil error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

// NewRepositories binds every repository to db.
func NewRepositories(db DBTX) Repositories {
	repos := Repositories{
		Tickets:      NewTicketRepository(db),
		Messages:     NewMessageRepository(db),
		Attachments:  NewAttachmentRepository(db),
		Recipients:   NewRecipientRepository(db),
		Contacts:     NewContactRepository(db),
		Companies:    NewCompanyRepository(db),
		Lookups:      NewLookupRepository(db),
		Channels:     NewChannelRepository(db),
		Webhooks:     NewWebhookRepository(db),
		DeliveryLogs: NewDeliveryLogRepository(db),
	}
	repos.Savepoints = func(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
		return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
			return fn(ctx, NewRepositories(tx))
		})
	}
	return repos
}

func (s *postgresStore) Repos() Repositories {
	return NewRepositories(s.pool)
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewRepositories(tx))
	})
}

// notFound maps pgx.ErrNoRows to domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// uniqueConstraint returns the violated constraint name, if err is a unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
