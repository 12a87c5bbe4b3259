// Package memory is an in-process repository.Store with the same uniqueness
// guarantees as the Postgres schema. Transactions are serialized and applied to
// a copy of the state that replaces the live state only on success.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/repository"
)

type identKey struct {
	tenantID int64
	typ      domain.IdentifierType
	value    string
}

type state struct {
	seq         int64
	tickets     map[int64]domain.Ticket
	messages    map[int64]domain.Message
	attachments map[int64]domain.Attachment
	recipients  map[int64]domain.MessageRecipient
	contacts    map[int64]domain.Contact
	identifiers map[identKey]int64
	companies   map[int64]domain.Company
	statuses    map[int64]domain.TicketStatus
	priorities  map[int64]domain.Priority
	departments map[int64]domain.Department
	folders     map[int64]domain.Folder
	settings    map[int64]domain.TenantSettings
	channels    map[int64]domain.Channel
	webhooks    map[int64]domain.Webhook
	logs        []domain.DeliveryLog
}

func newState() *state {
	return &state{
		tickets:     map[int64]domain.Ticket{},
		messages:    map[int64]domain.Message{},
		attachments: map[int64]domain.Attachment{},
		recipients:  map[int64]domain.MessageRecipient{},
		contacts:    map[int64]domain.Contact{},
		identifiers: map[identKey]int64{},
		companies:   map[int64]domain.Company{},
		statuses:    map[int64]domain.TicketStatus{},
		priorities:  map[int64]domain.Priority{},
		departments: map[int64]domain.Department{},
		folders:     map[int64]domain.Folder{},
		settings:    map[int64]domain.TenantSettings{},
		channels:    map[int64]domain.Channel{},
		webhooks:    map[int64]domain.Webhook{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:         s.seq,
		tickets:     maps.Clone(s.tickets),
		messages:    maps.Clone(s.messages),
		attachments: maps.Clone(s.attachments),
		recipients:  maps.Clone(s.recipients),
		contacts:    maps.Clone(s.contacts),
		identifiers: maps.Clone(s.identifiers),
		companies:   maps.Clone(s.companies),
		statuses:    maps.Clone(s.statuses),
		priorities:  maps.Clone(s.priorities),
		departments: maps.Clone(s.departments),
		folders:     maps.Clone(s.folders),
		settings:    maps.Clone(s.settings),
		channels:    maps.Clone(s.channels),
		webhooks:    maps.Clone(s.webhooks),
		logs:        slices.Clone(s.logs),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// Store is a mutex-guarded in-memory repository.Store.
type Store struct {
	mu sync.Mutex
	st *state
	// Now stamps created_at/updated_at columns.
	Now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: newState(), Now: func() time.Time { return time.Now().UTC() }}
}

var _ repository.Store = (*Store)(nil)

type handle struct {
	lock  func() func()
	state func() *state
	now   func() time.Time
}

func (s *Store) now() time.Time {
	return s.Now()
}

// Repos returns repositories operating directly on the live state.
func (s *Store) Repos() repository.Repositories {
	repos := build(&handle{
		lock: func() func() {
			s.mu.Lock()
			return s.mu.Unlock
		},
		state: func() *state { return s.st },
		now:   s.now,
	})
	repos.Savepoints = s.WithinTx
	return repos
}

// WithinTx runs fn against a private copy of the state and publishes it on success.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.st.clone()
	if err := fn(ctx, s.txRepos(&tx)); err != nil {
		return err
	}
	s.st = tx
	return nil
}

// txRepos binds repositories to the transaction state *cur. A savepoint works
// on a copy that replaces *cur only when it succeeds.
func (s *Store) txRepos(cur **state) repository.Repositories {
	repos := build(&handle{
		lock:  func() func() { return func() {} },
		state: func() *state { return *cur },
		now:   s.now,
	})
	repos.Savepoints = func(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
		nested := (*cur).clone()
		if err := fn(ctx, s.txRepos(&nested)); err != nil {
			return err
		}
		*cur = nested
		return nil
	}
	return repos
}

func build(h *handle) repository.Repositories {
	return repository.Repositories{
		Tickets:      &ticketRepo{h},
		Messages:     &messageRepo{h},
		Attachments:  &attachmentRepo{h},
		Recipients:   &recipientRepo{h},
		Contacts:     &contactRepo{h},
		Companies:    &companyRepo{h},
		Lookups:      &lookupRepo{h},
		Channels:     &channelRepo{h},
		Webhooks:     &webhookRepo{h},
		DeliveryLogs: &deliveryLogRepo{h},
	}
}

func (s *Store) write(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.st)
}

func ptr[T any](v T) *T {
	return &v
}

func sortedValues[T any](m map[int64]T, keep func(T) bool) []T {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if keep == nil || keep(m[id]) {
			out = append(out, m[id])
		}
	}
	return out
}
