package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/provider"
)

// smtpSender submits a composed message.
type smtpSender interface {
	Send(ctx context.Context, acc Account, from string, to []string, msg []byte) error
}

// SendMessage composes the reply as multipart/alternative and submits it over SMTP.
// The returned provider message id is the Message-ID without angle brackets.
func (p *Provider) SendMessage(ctx context.Context, channel *domain.Channel, message *domain.Message, ticket *domain.Ticket, headers provider.OutboundHeaders) (string, error) {
	acc, err := ParseAccount(channel.CredentialRef)
	if err != nil {
		return "", err
	}
	if err := acc.canSend(); err != nil {
		return "", err
	}
	if strings.TrimSpace(headers.ToEmail) == "" {
		return "", domain.NewConfigError("message %d has no recipient", message.ID)
	}
	msgID := domain.NormalizeMessageID(headers.MessageID)
	if msgID == "" {
		return "", domain.NewConfigError("message %d has no message id", message.ID)
	}

	subject := headers.Subject
	if subject == "" && ticket != nil {
		subject = "Re: " + ticket.Subject
	}
	raw, err := composeMessage(acc.From, channel.Name, headers, subject, msgID, message)
	if err != nil {
		return "", fmt.Errorf("compose message: %w", err)
	}
	if err := p.smtp.Send(ctx, acc, acc.From, []string{headers.ToEmail}, raw); err != nil {
		return "", classifySMTP(err)
	}
	return msgID, nil
}

func composeMessage(from, fromName string, headers provider.OutboundHeaders, subject, msgID string, message *domain.Message) ([]byte, error) {
	var h gomail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*gomail.Address{{Name: fromName, Address: from}})
	h.SetAddressList("To", []*gomail.Address{{Name: headers.ToName, Address: headers.ToEmail}})
	h.SetSubject(subject)
	h.SetMessageID(msgID)
	if id := domain.NormalizeMessageID(headers.InReplyTo); id != "" {
		h.SetMsgIDList("In-Reply-To", []string{id})
	}
	if len(headers.References) > 0 {
		refs := make([]string, 0, len(headers.References))
		for _, r := range headers.References {
			if id := domain.NormalizeMessageID(r); id != "" {
				refs = append(refs, id)
			}
		}
		h.SetMsgIDList("References", refs)
	}
	if message.IsAutoReply {
		h.Set("Auto-Submitted", "auto-replied")
	}
	for k, v := range headers.Extra {
		h.Set(k, v)
	}

	var buf bytes.Buffer
	w, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	alt, err := w.CreateInline()
	if err != nil {
		return nil, err
	}
	if err := writePart(alt, "text/plain", message.Body); err != nil {
		return nil, err
	}
	if message.BodyHTML != "" {
		if err := writePart(alt, "text/html", message.BodyHTML); err != nil {
			return nil, err
		}
	}
	if err := alt.Close(); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(w *gomail.InlineWriter, mediaType, body string) error {
	var h gomail.InlineHeader
	h.SetContentType(mediaType, map[string]string{"charset": "utf-8"})
	pw, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return err
	}
	return pw.Close()
}

// classifySMTP maps reply codes onto retry classes: 4xx is transient, 5xx is not.
func classifySMTP(err error) error {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return err
	}
	out := &provider.Error{Provider: domain.ProviderIMAP, Op: "smtp send", Err: err}
	var tpErr *textproto.Error
	switch {
	case errors.As(err, &tpErr):
		out.StatusCode = tpErr.Code
		out.Temporary = tpErr.Code >= 400 && tpErr.Code < 500
	default:
		out.Temporary = provider.IsTemporary(err) || errors.Is(err, io.EOF)
	}
	return out
}

// netSMTP delivers through net/smtp, bounded by the context deadline.
type netSMTP struct{}

func (netSMTP) Send(ctx context.Context, acc Account, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", acc.SMTPAddr())
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	tlsCfg := &tls.Config{ServerName: acc.SMTPHost, MinVersion: tls.VersionTLS12}
	if acc.SMTPTLS {
		conn = tls.Client(conn, tlsCfg)
	}
	c, err := smtp.NewClient(conn, acc.SMTPHost)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if !acc.SMTPTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsCfg); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(smtp.PlainAuth("", acc.Username, acc.Password, acc.SMTPHost)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return fmt.Errorf("write data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return c.Quit()
}
