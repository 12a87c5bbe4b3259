package mailbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/provider"
)

// Provider pulls mail over IMAP and sends replies over SMTP.
type Provider struct {
	logger      *zap.Logger
	dialTimeout time.Duration
	dial        func(Account, time.Duration) (imapSession, error)
	smtp        smtpSender
}

// Option customizes a Provider.
type Option func(*Provider)

// WithDialTimeout overrides the IMAP dial timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

func withSession(dial func(Account, time.Duration) (imapSession, error)) Option {
	return func(p *Provider) { p.dial = dial }
}

func withSMTP(s smtpSender) Option {
	return func(p *Provider) { p.smtp = s }
}

// New creates the mailbox provider.
func New(logger *zap.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		logger:      logger,
		dialTimeout: 10 * time.Second,
		dial:        dialIMAP,
		smtp:        netSMTP{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var (
	_ provider.Fetcher  = (*Provider)(nil)
	_ provider.Sender   = (*Provider)(nil)
	_ provider.Archiver = (*Provider)(nil)
	_ provider.Mover    = (*Provider)(nil)
	_ provider.Deleter  = (*Provider)(nil)
)

func (p *Provider) open(ctx context.Context, channel *domain.Channel) (imapSession, Account, error) {
	acc, err := ParseAccount(channel.CredentialRef)
	if err != nil {
		return nil, Account{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, Account{}, err
	}
	s, err := p.dial(acc, p.dialTimeout)
	if err != nil {
		return nil, Account{}, wrap("connect", err, true)
	}
	if err := s.Login(acc.Username, acc.Password); err != nil {
		_ = s.Close()
		return nil, Account{}, wrap("login", err, false)
	}
	if err := s.Select(acc.Folder); err != nil {
		_ = s.Close()
		return nil, Account{}, wrap("select "+acc.Folder, err, true)
	}
	return s, acc, nil
}

func (p *Provider) done(s imapSession) {
	if err := s.Logout(); err != nil {
		p.logger.Debug("imap logout failed", zap.Error(err))
	}
	if err := s.Close(); err != nil {
		p.logger.Debug("imap close failed", zap.Error(err))
	}
}

// FetchSince returns messages whose internal date is at or after since.
// Messages that fail to parse are logged and skipped.
func (p *Provider) FetchSince(ctx context.Context, channel *domain.Channel, since time.Time) ([]provider.FetchedEmail, error) {
	s, _, err := p.open(ctx, channel)
	if err != nil {
		return nil, err
	}
	defer p.done(s)

	uids, err := s.SearchSince(since)
	if err != nil {
		return nil, wrap("search", err, true)
	}
	raws, err := s.Fetch(uids)
	if err != nil {
		return nil, wrap("fetch", err, true)
	}

	out := make([]provider.FetchedEmail, 0, len(raws))
	for _, raw := range raws {
		if !raw.InternalDate.IsZero() && raw.InternalDate.Before(since) {
			continue
		}
		email, err := ParseMessage(raw.Body)
		if err != nil {
			p.logger.Warn("skipping unparseable message",
				zap.Int64("channel_id", channel.ID),
				zap.Uint32("uid", uint32(raw.UID)),
				zap.Error(err),
			)
			continue
		}
		ref := strconv.FormatUint(uint64(raw.UID), 10)
		email.ID = ref
		if email.ReceivedAt.IsZero() || !raw.InternalDate.IsZero() {
			email.ReceivedAt = raw.InternalDate.UTC()
		}
		out = append(out, provider.FetchedEmail{Email: email, Ref: ref})
	}
	return out, nil
}

// Archive moves the message to the account's archive folder.
func (p *Provider) Archive(ctx context.Context, channel *domain.Channel, ref string) error {
	return p.withUID(ctx, channel, ref, func(s imapSession, acc Account, uid imap.UID) error {
		return s.Move([]imap.UID{uid}, acc.ArchiveFolder)
	})
}

// Move moves the message to folder.
func (p *Provider) Move(ctx context.Context, channel *domain.Channel, ref, folder string) error {
	return p.withUID(ctx, channel, ref, func(s imapSession, _ Account, uid imap.UID) error {
		return s.Move([]imap.UID{uid}, folder)
	})
}

// Delete flags the message deleted and expunges it.
func (p *Provider) Delete(ctx context.Context, channel *domain.Channel, ref string) error {
	return p.withUID(ctx, channel, ref, func(s imapSession, _ Account, uid imap.UID) error {
		return s.Delete([]imap.UID{uid})
	})
}

func (p *Provider) withUID(ctx context.Context, channel *domain.Channel, ref string, fn func(imapSession, Account, imap.UID) error) error {
	n, err := strconv.ParseUint(ref, 10, 32)
	if err != nil || n == 0 {
		return fmt.Errorf("invalid imap uid %q", ref)
	}
	s, acc, err := p.open(ctx, channel)
	if err != nil {
		return err
	}
	defer p.done(s)
	if err := fn(s, acc, imap.UID(n)); err != nil {
		return wrap("post-import", err, true)
	}
	return nil
}

func wrap(op string, err error, temporary bool) error {
	return &provider.Error{Provider: domain.ProviderIMAP, Op: op, Temporary: temporary, Err: err}
}
