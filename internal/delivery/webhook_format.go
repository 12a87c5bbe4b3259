package delivery

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

const discordColor = 0x5865F2

type defaultPayload struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	WebhookID int64           `json:"webhook_id"`
	Data      json.RawMessage `json:"data"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Timestamp   string         `json:"timestamp"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// summary is the human readable part of rich-card formats.
type summary struct {
	TicketNumber  string `json:"number"`
	MessageTicket string `json:"ticket_number"`
	Subject       string `json:"subject"`
	Preview       string `json:"body_preview"`
	Error         string `json:"error"`
}

func (s summary) ticket() string {
	if s.TicketNumber != "" {
		return s.TicketNumber
	}
	return s.MessageTicket
}

func renderWebhook(hook *domain.Webhook, job WebhookJob) ([]byte, error) {
	ts := job.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	data := job.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	switch hook.Format {
	case "", domain.WebhookFormatDefault:
		return json.Marshal(defaultPayload{
			Event:     job.Event,
			Timestamp: ts.UTC().Format(time.RFC3339),
			WebhookID: hook.ID,
			Data:      data,
		})
	case domain.WebhookFormatSlack, domain.WebhookFormatDiscord:
		var s summary
		_ = json.Unmarshal(data, &s)
		title := headline(job.Event, s)
		detail := s.Preview
		if s.Error != "" {
			detail = "Error: " + s.Error
		}
		if hook.Format == domain.WebhookFormatSlack {
			blocks := []slackBlock{{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "*" + title + "*"}}}
			if detail != "" {
				blocks = append(blocks, slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: detail}})
			}
			blocks = append(blocks, slackBlock{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: job.Event}}})
			return json.Marshal(slackPayload{Text: title, Blocks: blocks})
		}
		embed := discordEmbed{
			Title:       title,
			Description: detail,
			Timestamp:   ts.UTC().Format(time.RFC3339),
			Color:       discordColor,
			Fields:      []discordField{{Name: "Event", Value: job.Event, Inline: true}},
		}
		if t := s.ticket(); t != "" {
			embed.Fields = append(embed.Fields, discordField{Name: "Ticket", Value: t, Inline: true})
		}
		return json.Marshal(discordPayload{Embeds: []discordEmbed{embed}})
	default:
		return nil, domain.NewConfigError("unsupported webhook format %q", hook.Format)
	}
}

func headline(event string, s summary) string {
	label := strings.ReplaceAll(event, ".", " ")
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	parts := []string{label}
	if t := s.ticket(); t != "" {
		parts = append(parts, t)
	}
	if s.Subject != "" {
		parts = append(parts, s.Subject)
	}
	return strings.Join(parts, ": ")
}
