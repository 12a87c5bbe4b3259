package dto

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/fluxdesk/conversation-service/internal/domain"
	apperrors "github.com/fluxdesk/conversation-service/pkg/util/errorutil"
)

const addressSchema = `{
  "type": "object",
  "required": ["email"],
  "properties": {
    "email": {"type": "string"},
    "name": {"type": "string"}
  }
}`

const attachmentSchema = `{
  "type": "object",
  "required": ["filename"],
  "properties": {
    "filename": {"type": "string"},
    "content_type": {"type": "string"},
    "content": {"type": "string"},
    "url": {"type": "string"},
    "content_id": {"type": "string"},
    "is_inline": {"type": "boolean"}
  }
}`

var inboundEmailSchema = mustSchema(`{
  "type": "object",
  "required": ["from_email"],
  "anyOf": [
    {"required": ["internet_message_id"], "properties": {"internet_message_id": {"minLength": 1}}},
    {"required": ["id"], "properties": {"id": {"minLength": 1}}}
  ],
  "properties": {
    "id": {"type": "string"},
    "internet_message_id": {"type": "string"},
    "conversation_id": {"type": "string"},
    "thread_id": {"type": "string"},
    "thread_index": {"type": "string"},
    "from_email": {"type": "string", "minLength": 3},
    "from_name": {"type": "string"},
    "subject": {"type": "string"},
    "body_text": {"type": "string"},
    "body_html": {"type": "string"},
    "received_at": {"type": "string"},
    "in_reply_to": {"type": "string"},
    "references": {"type": "array", "items": {"type": "string"}},
    "importance": {"type": "string"},
    "headers": {"type": "object", "additionalProperties": {"type": "string"}},
    "to": {"type": "array", "items": ` + addressSchema + `},
    "cc": {"type": "array", "items": ` + addressSchema + `},
    "bcc": {"type": "array", "items": ` + addressSchema + `},
    "attachments": {"type": "array", "items": ` + attachmentSchema + `}
  }
}`)

var inboundMessagingSchema = mustSchema(`{
  "type": "object",
  "required": ["message_id", "sender_id"],
  "properties": {
    "message_id": {"type": "string", "minLength": 1},
    "conversation_id": {"type": "string"},
    "sender_id": {"type": "string", "minLength": 1},
    "sender_name": {"type": "string"},
    "sender_username": {"type": "string"},
    "sender_avatar_url": {"type": "string"},
    "text": {"type": "string"},
    "timestamp": {"type": "string"},
    "attachments": {"type": "array", "items": ` + attachmentSchema + `}
  }
}`)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid inbound schema: %v", err))
	}
	return schema
}

// ParseInboundEmail validates a provider email payload and decodes it.
func ParseInboundEmail(body []byte) (*domain.InboundEmail, error) {
	if err := validate(inboundEmailSchema, body); err != nil {
		return nil, err
	}
	var email domain.InboundEmail
	if err := json.Unmarshal(body, &email); err != nil {
		return nil, apperrors.NewValidationError("invalid payload", map[string]any{"body": err.Error()})
	}
	return &email, nil
}

// ParseInboundMessaging validates a messaging provider payload and decodes it.
func ParseInboundMessaging(body []byte) (*domain.InboundMessagingEvent, error) {
	if err := validate(inboundMessagingSchema, body); err != nil {
		return nil, err
	}
	var event domain.InboundMessagingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperrors.NewValidationError("invalid payload", map[string]any{"body": err.Error()})
	}
	return &event, nil
}

func validate(schema *gojsonschema.Schema, body []byte) error {
	if !json.Valid(body) {
		return apperrors.NewValidationError("invalid payload", map[string]any{"body": "malformed JSON"})
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"body": err.Error()})
	}
	if result.Valid() {
		return nil
	}
	details := make(map[string]any, len(result.Errors()))
	for _, e := range result.Errors() {
		details[e.Field()] = e.Description()
	}
	return apperrors.NewValidationError("invalid payload", details)
}

// AcceptedResponse acknowledges a queued inbound payload.
type AcceptedResponse struct {
	JobID string `json:"job_id"`
}
