package domain

import (
	"strings"
	"time"
)

// Address is a parsed mailbox.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// InboundAttachment is an attachment as delivered by a provider.
type InboundAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	// Content is base64 encoded, as providers deliver it over JSON.
	Content   string `json:"content,omitempty"`
	URL       string `json:"url,omitempty"`
	ContentID string `json:"content_id,omitempty"`
	IsInline  bool   `json:"is_inline,omitempty"`
	// Data carries already-decoded bytes from in-process fetchers.
	Data []byte `json:"-"`
}

// InboundEmail is the normalized email payload consumed by the ingestor.
type InboundEmail struct {
	ID                string              `json:"id"`
	InternetMessageID string              `json:"internet_message_id"`
	ConversationID    string              `json:"conversation_id,omitempty"`
	ThreadID          string              `json:"thread_id,omitempty"`
	ThreadIndex       string              `json:"thread_index,omitempty"`
	FromEmail         string              `json:"from_email"`
	FromName          string              `json:"from_name"`
	Subject           string              `json:"subject"`
	BodyText          string              `json:"body_text"`
	BodyHTML          string              `json:"body_html"`
	ReceivedAt        time.Time           `json:"received_at"`
	InReplyTo         string              `json:"in_reply_to,omitempty"`
	References        []string            `json:"references,omitempty"`
	Importance        string              `json:"importance,omitempty"`
	Headers           map[string]string   `json:"headers,omitempty"`
	To                []Address           `json:"to,omitempty"`
	Cc                []Address           `json:"cc,omitempty"`
	Bcc               []Address           `json:"bcc,omitempty"`
	Attachments       []InboundAttachment `json:"attachments,omitempty"`
}

// ThreadKey returns the provider conversation identifier, if any.
func (e *InboundEmail) ThreadKey() string {
	if e.ConversationID != "" {
		return e.ConversationID
	}
	return e.ThreadID
}

// Header returns a header value using a case-insensitive name lookup.
func (e *InboundEmail) Header(name string) string {
	if v, ok := e.Headers[name]; ok {
		return v
	}
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ProviderMessageID returns the dedup key for the email.
func (e *InboundEmail) ProviderMessageID() string {
	if id := NormalizeMessageID(e.InternetMessageID); id != "" {
		return id
	}
	return strings.TrimSpace(e.ID)
}

// IsReply reports whether the email references an earlier message.
func (e *InboundEmail) IsReply() bool {
	return strings.TrimSpace(e.InReplyTo) != "" || len(e.References) > 0
}

// InboundMessagingEvent is the normalized social messaging payload.
type InboundMessagingEvent struct {
	MessageID       string              `json:"message_id"`
	ConversationID  string              `json:"conversation_id"`
	SenderID        string              `json:"sender_id"`
	SenderName      string              `json:"sender_name"`
	SenderUsername  string              `json:"sender_username,omitempty"`
	SenderAvatarURL string              `json:"sender_avatar_url,omitempty"`
	Text            string              `json:"text"`
	Attachments     []InboundAttachment `json:"attachments,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
}

// NormalizeMessageID strips whitespace and angle brackets from a Message-ID.
func NormalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.TrimSpace(id)
}
