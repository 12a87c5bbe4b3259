package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"golang.org/x/net/html/charset"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

const (
	maxBodyBytes       = 2 << 20
	maxAttachmentBytes = 25 << 20
)

func init() {
	gomessage.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(label, input)
	}
}

// passthroughHeaders are copied into InboundEmail.Headers for threading and urgency detection.
var passthroughHeaders = []string{"X-Ticket-ID", "X-Ticket-Reference", "X-Priority", "Importance", "Thread-Index", "Thread-Topic", "Auto-Submitted"}

// ParseMessage converts a raw RFC 5322 message into the inbound email payload.
func ParseMessage(raw []byte) (domain.InboundEmail, error) {
	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return domain.InboundEmail{}, fmt.Errorf("parse message: %w", err)
	}
	defer reader.Close()

	h := reader.Header
	email := domain.InboundEmail{Headers: map[string]string{}}
	if email.Subject, err = h.Subject(); err != nil {
		email.Subject = h.Get("Subject")
	}
	if id, err := h.MessageID(); err == nil {
		email.InternetMessageID = id
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		email.InReplyTo = ids[0]
	}
	if ids, err := h.MsgIDList("References"); err == nil {
		email.References = ids
	}
	if date, err := h.Date(); err == nil {
		email.ReceivedAt = date.UTC()
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		email.FromEmail = from[0].Address
		email.FromName = from[0].Name
	}
	email.To = addressList(h, "To")
	email.Cc = addressList(h, "Cc")
	email.Importance = strings.ToLower(strings.TrimSpace(h.Get("Importance")))
	email.ThreadIndex = h.Get("Thread-Index")
	for _, name := range passthroughHeaders {
		if v := h.Get(name); v != "" {
			email.Headers[name] = v
		}
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// keep the parts read so far; a broken trailing part does not void the message
			break
		}
		switch ph := part.Header.(type) {
		case *gomail.InlineHeader:
			mediaType, _, _ := ph.ContentType()
			mediaType = strings.ToLower(mediaType)
			switch {
			case mediaType == "text/plain" || mediaType == "":
				if email.BodyText == "" {
					email.BodyText = readLimited(part.Body, maxBodyBytes)
				}
			case mediaType == "text/html":
				if email.BodyHTML == "" {
					email.BodyHTML = readLimited(part.Body, maxBodyBytes)
				}
			default:
				if att, ok := inlineAttachment(part, ph, mediaType); ok {
					email.Attachments = append(email.Attachments, att)
				}
			}
		case *gomail.AttachmentHeader:
			filename, _ := ph.Filename()
			mediaType, _, _ := ph.ContentType()
			data, err := io.ReadAll(io.LimitReader(part.Body, maxAttachmentBytes))
			if err != nil || len(data) == 0 {
				continue
			}
			email.Attachments = append(email.Attachments, domain.InboundAttachment{
				Filename:    filename,
				ContentType: strings.ToLower(mediaType),
				ContentID:   ph.Get("Content-Id"),
				Data:        data,
			})
		}
	}
	return email, nil
}

func inlineAttachment(part *gomail.Part, h *gomail.InlineHeader, mediaType string) (domain.InboundAttachment, bool) {
	data, err := io.ReadAll(io.LimitReader(part.Body, maxAttachmentBytes))
	if err != nil || len(data) == 0 {
		return domain.InboundAttachment{}, false
	}
	filename := ""
	if _, params, err := h.ContentDisposition(); err == nil {
		filename = params["filename"]
	}
	if filename == "" {
		if _, params, err := h.ContentType(); err == nil {
			filename = params["name"]
		}
	}
	return domain.InboundAttachment{
		Filename:    filename,
		ContentType: mediaType,
		ContentID:   h.Get("Content-Id"),
		IsInline:    true,
		Data:        data,
	}, true
}

func addressList(h gomail.Header, key string) []domain.Address {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]domain.Address, 0, len(list))
	for _, a := range list {
		out = append(out, domain.Address{Email: a.Address, Name: a.Name})
	}
	return out
}

func readLimited(r io.Reader, limit int64) string {
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil && len(data) == 0 {
		return ""
	}
	return string(data)
}
