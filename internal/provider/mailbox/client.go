package mailbox

import (
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// rawMessage is a fetched RFC 5322 message.
type rawMessage struct {
	UID          imap.UID
	InternalDate time.Time
	Body         []byte
}

// imapSession is the narrow IMAP surface the provider needs.
type imapSession interface {
	Login(username, password string) error
	Select(mailbox string) error
	SearchSince(since time.Time) ([]imap.UID, error)
	Fetch(uids []imap.UID) ([]rawMessage, error)
	Move(uids []imap.UID, mailbox string) error
	Delete(uids []imap.UID) error
	Logout() error
	Close() error
}

type clientSession struct {
	c *imapclient.Client
}

func dialIMAP(acc Account, timeout time.Duration) (imapSession, error) {
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: timeout}}
	var (
		c   *imapclient.Client
		err error
	)
	if acc.TLS {
		c, err = imapclient.DialTLS(acc.IMAPAddr(), opts)
	} else {
		c, err = imapclient.DialInsecure(acc.IMAPAddr(), opts)
	}
	if err != nil {
		return nil, err
	}
	return &clientSession{c: c}, nil
}

func (s *clientSession) Login(username, password string) error {
	return s.c.Login(username, password).Wait()
}

func (s *clientSession) Select(mailbox string) error {
	_, err := s.c.Select(mailbox, nil).Wait()
	return err
}

func (s *clientSession) SearchSince(since time.Time) ([]imap.UID, error) {
	criteria := &imap.SearchCriteria{}
	if !since.IsZero() {
		// IMAP SINCE has day granularity; callers filter on the internal date.
		criteria.Since = since
	}
	data, err := s.c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, err
	}
	return data.AllUIDs(), nil
}

func (s *clientSession) Fetch(uids []imap.UID) ([]rawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	opts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{{Peek: true}},
	}
	bufs, err := s.c.Fetch(imap.UIDSetNum(uids...), opts).Collect()
	if err != nil {
		return nil, err
	}
	out := make([]rawMessage, 0, len(bufs))
	for _, buf := range bufs {
		body := buf.FindBodySection(&imap.FetchItemBodySection{})
		if body == nil {
			continue
		}
		out = append(out, rawMessage{UID: buf.UID, InternalDate: buf.InternalDate, Body: body})
	}
	return out, nil
}

func (s *clientSession) Move(uids []imap.UID, mailbox string) error {
	if _, err := s.c.Move(imap.UIDSetNum(uids...), mailbox).Wait(); err != nil {
		return fmt.Errorf("move to %s: %w", mailbox, err)
	}
	return nil
}

func (s *clientSession) Delete(uids []imap.UID) error {
	set := imap.UIDSetNum(uids...)
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Silent: true, Flags: []imap.Flag{imap.FlagDeleted}}
	if err := s.c.Store(set, store, nil).Close(); err != nil {
		return fmt.Errorf("flag deleted: %w", err)
	}
	if err := s.c.UIDExpunge(set).Close(); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}

func (s *clientSession) Logout() error {
	return s.c.Logout().Wait()
}

func (s *clientSession) Close() error {
	return s.c.Close()
}
