// Package content turns raw provider bodies into the canonical message content:
// plain text, sanitized HTML, decoded attachments and an urgency flag.
package content

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// Input is the raw content of one inbound message.
type Input struct {
	PlainBody   string
	HTMLBody    string
	Subject     string
	Importance  string
	Header      func(name string) string
	IsReply     bool
	Attachments []domain.InboundAttachment
}

// DecodedAttachment is an attachment whose bytes are ready to be stored.
type DecodedAttachment struct {
	Filename    string
	ContentType string
	ContentID   string
	IsInline    bool
	Data        []byte
}

// Normalized is the canonical content derived from an Input.
type Normalized struct {
	PlainBody     string
	SanitizedHTML string
	IsUrgent      bool
	Attachments   []DecodedAttachment
}

// Normalizer applies quote stripping, sanitization and attachment decoding.
type Normalizer struct {
	sanitizer *Sanitizer
	logger    *zap.Logger
}

// NewNormalizer creates a Normalizer; isInternal identifies our storage URLs.
func NewNormalizer(logger *zap.Logger, isInternal func(string) bool) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{sanitizer: NewSanitizer(isInternal), logger: logger}
}

// Normalize produces the canonical content. The HTML returned here has not had
// its cid: references resolved; call RenderHTML once attachments are stored.
func (n *Normalizer) Normalize(in Input) Normalized {
	out := Normalized{
		IsUrgent: IsUrgent(in.Subject, in.Importance, in.Header),
	}

	plain := strings.ReplaceAll(in.PlainBody, "\r\n", "\n")
	if strings.TrimSpace(plain) == "" && in.HTMLBody != "" {
		html := in.HTMLBody
		if in.IsReply {
			html = StripQuotedHTML(html)
		}
		plain = HTMLToText(html)
	} else if in.IsReply {
		plain = StripQuotedText(plain)
	}
	out.PlainBody = strings.TrimSpace(plain)
	out.SanitizedHTML = n.RenderHTML(in.HTMLBody, in.IsReply, nil)

	for _, att := range in.Attachments {
		decoded, err := DecodeAttachment(att)
		if err != nil {
			n.logger.Warn("skipping attachment",
				zap.String("filename", att.Filename),
				zap.Error(err),
			)
			continue
		}
		out.Attachments = append(out.Attachments, decoded)
	}
	return out
}

// RenderHTML strips quotes for replies, resolves cid: references and sanitizes.
func (n *Normalizer) RenderHTML(raw string, isReply bool, cidURLs map[string]string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	if isReply {
		raw = StripQuotedHTML(raw)
	}
	raw = RewriteCIDs(raw, cidURLs)
	return n.sanitizer.Sanitize(raw)
}

// Sanitizer exposes the HTML policy used by the normalizer.
func (n *Normalizer) Sanitizer() *Sanitizer {
	return n.sanitizer
}

// DecodeAttachment decodes base64 content. Attachments that only carry a URL
// are not fetched and are reported as an error.
func DecodeAttachment(att domain.InboundAttachment) (DecodedAttachment, error) {
	out := DecodedAttachment{
		Filename:    strings.TrimSpace(att.Filename),
		ContentType: strings.TrimSpace(att.ContentType),
		ContentID:   NormalizeContentID(att.ContentID),
		IsInline:    att.IsInline,
		Data:        att.Data,
	}
	if out.ContentType == "" {
		out.ContentType = "application/octet-stream"
	}
	if out.Filename == "" {
		out.Filename = "attachment"
	}
	if len(out.Data) > 0 {
		return out, nil
	}
	if att.Content == "" {
		if att.URL != "" {
			return out, fmt.Errorf("remote attachment %q not fetched", att.URL)
		}
		return out, errors.New("attachment has no content")
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, att.Content)
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "="))
		if err != nil {
			return out, fmt.Errorf("decode attachment: %w", err)
		}
	}
	out.Data = data
	return out, nil
}
