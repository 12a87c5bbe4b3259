// Package provider defines the capabilities a channel provider may implement
// and a registry that selects implementations by provider type.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// FetchedEmail is one message pulled from a mailbox.
type FetchedEmail struct {
	Email domain.InboundEmail
	// Ref identifies the message for post-import actions, e.g. an IMAP UID.
	Ref string
}

// OutboundHeaders carries the threading headers of an outgoing message.
type OutboundHeaders struct {
	MessageID  string
	InReplyTo  string
	References []string
	Subject    string
	ToEmail    string
	ToName     string
	// Extra headers such as X-Ticket-ID.
	Extra map[string]string
}

// Fetcher pulls messages received since a point in time.
type Fetcher interface {
	FetchSince(ctx context.Context, channel *domain.Channel, since time.Time) ([]FetchedEmail, error)
}

// Sender delivers an outbound message and returns the provider message id.
type Sender interface {
	SendMessage(ctx context.Context, channel *domain.Channel, message *domain.Message, ticket *domain.Ticket, headers OutboundHeaders) (string, error)
}

// Archiver archives a fetched message.
type Archiver interface {
	Archive(ctx context.Context, channel *domain.Channel, ref string) error
}

// Mover moves a fetched message to a folder.
type Mover interface {
	Move(ctx context.Context, channel *domain.Channel, ref, folder string) error
}

// Deleter deletes a fetched message.
type Deleter interface {
	Delete(ctx context.Context, channel *domain.Channel, ref string) error
}

// Error is a classified provider failure.
type Error struct {
	Provider   domain.ProviderType
	Op         string
	StatusCode int
	Temporary  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTemporary reports whether err is worth retrying. Unclassified network
// errors and timeouts count as temporary; configuration errors never do.
func IsTemporary(err error) bool {
	if err == nil || domain.IsConfigError(err) {
		return false
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Temporary
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// Registry maps provider types to implementations.
type Registry struct {
	mu        sync.RWMutex
	providers map[domain.ProviderType]any
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[domain.ProviderType]any)}
}

// Register binds an implementation to a provider type.
func (r *Registry) Register(t domain.ProviderType, impl any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[t] = impl
}

// Get returns the implementation registered for t.
func (r *Registry) Get(t domain.ProviderType) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[t]
	return p, ok
}

// Fetcher returns the Fetcher for t or a configuration error.
func (r *Registry) Fetcher(t domain.ProviderType) (Fetcher, error) {
	p, ok := r.Get(t)
	if !ok {
		return nil, domain.NewConfigError("no provider registered for %q", t)
	}
	f, ok := p.(Fetcher)
	if !ok {
		return nil, domain.NewConfigError("provider %q cannot fetch messages", t)
	}
	return f, nil
}

// Sender returns the Sender for t or a configuration error.
func (r *Registry) Sender(t domain.ProviderType) (Sender, error) {
	p, ok := r.Get(t)
	if !ok {
		return nil, domain.NewConfigError("no provider registered for %q", t)
	}
	s, ok := p.(Sender)
	if !ok {
		return nil, domain.NewConfigError("provider %q cannot send messages", t)
	}
	return s, nil
}

// ApplyPostImport runs the channel's post-import action through the optional
// capabilities. Providers lacking the capability yield a configuration error.
func ApplyPostImport(ctx context.Context, impl any, channel *domain.Channel, ref string) error {
	switch channel.PostImportAction {
	case "", domain.PostImportNone:
		return nil
	case domain.PostImportArchive:
		a, ok := impl.(Archiver)
		if !ok {
			return domain.NewConfigError("provider %q cannot archive", channel.Provider)
		}
		return a.Archive(ctx, channel, ref)
	case domain.PostImportMove:
		m, ok := impl.(Mover)
		if !ok {
			return domain.NewConfigError("provider %q cannot move messages", channel.Provider)
		}
		if channel.PostImportFolder == "" {
			return domain.NewConfigError("channel %d has no post-import folder", channel.ID)
		}
		return m.Move(ctx, channel, ref, channel.PostImportFolder)
	case domain.PostImportDelete:
		d, ok := impl.(Deleter)
		if !ok {
			return domain.NewConfigError("provider %q cannot delete messages", channel.Provider)
		}
		return d.Delete(ctx, channel, ref)
	default:
		return domain.NewConfigError("unknown post-import action %q", channel.PostImportAction)
	}
}
