package domain

import "time"

// ChannelType identifies the medium a conversation arrived on.
type ChannelType string

const (
	ChannelTypeEmail     ChannelType = "email"
	ChannelTypeInstagram ChannelType = "instagram"
	ChannelTypeWhatsApp  ChannelType = "whatsapp"
	ChannelTypeFacebook  ChannelType = "facebook"
)

// IsMessaging reports whether the channel type is a social messaging platform.
func (t ChannelType) IsMessaging() bool {
	switch t {
	case ChannelTypeInstagram, ChannelTypeWhatsApp, ChannelTypeFacebook:
		return true
	default:
		return false
	}
}

// Ticket is the conversation root.
type Ticket struct {
	ID                      int64
	TenantID                int64
	Number                  string
	Subject                 string
	StatusID                int64
	PriorityID              *int64
	DepartmentID            int64
	ContactID               int64
	FolderID                *int64
	ChannelType             ChannelType
	ChannelID               int64
	EmailThreadID           *string
	EmailThreadIndex        *string
	MessagingConversationID *string
	MessagingParticipantID  *string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	ClosedAt                *time.Time
	ResolvedAt              *time.Time
	FirstResponseAt         *time.Time
	DeletedAt               *time.Time
}

// TicketStatus is a tenant-defined lifecycle state.
type TicketStatus struct {
	ID        int64
	TenantID  int64
	Name      string
	Slug      string
	IsDefault bool
	IsClosed  bool
	SortOrder int
}

// Priority is a tenant-defined urgency level.
type Priority struct {
	ID        int64
	TenantID  int64
	Name      string
	Slug      string
	SortOrder int
}

// Department owns tickets routed from a channel.
type Department struct {
	ID        int64
	TenantID  int64
	Name      string
	IsDefault bool
}

// Folder groups tickets for agents. ClosedOnly folders hold closed tickets exclusively.
type Folder struct {
	ID         int64
	TenantID   int64
	Name       string
	ClosedOnly bool
}

// TenantSettings carries per-organization switches consumed during ingestion.
type TenantSettings struct {
	TenantID            int64
	OrganizationName    string
	SystemEmailsEnabled bool
	Timezone            string
	BusinessHours       BusinessHours
}

// BusinessHours describes the working window used by auto-replies.
type BusinessHours struct {
	StartHour int
	EndHour   int
	Workdays  []time.Weekday
}
