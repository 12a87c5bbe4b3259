package domain

import "time"

// ChannelKind separates pull/push mailboxes from messaging accounts.
type ChannelKind string

const (
	ChannelKindEmail     ChannelKind = "email"
	ChannelKindMessaging ChannelKind = "messaging"
)

// ProviderType is the tagged provider implementation behind a channel.
type ProviderType string

const (
	ProviderIMAP         ProviderType = "imap"
	ProviderMicrosoft365 ProviderType = "microsoft365"
	ProviderGmail        ProviderType = "gmail"
	ProviderInstagram    ProviderType = "instagram"
	ProviderWhatsApp     ProviderType = "whatsapp"
	ProviderFacebook     ProviderType = "facebook"
)

// PostImportAction is applied to a mailbox message once it has been ingested.
type PostImportAction string

const (
	PostImportNone    PostImportAction = "none"
	PostImportArchive PostImportAction = "archive"
	PostImportMove    PostImportAction = "move"
	PostImportDelete  PostImportAction = "delete"
)

// AutoReplyConfig configures automated acknowledgements on new conversations.
type AutoReplyConfig struct {
	Enabled           bool
	Template          string
	DelaySeconds      int
	BusinessHoursOnly bool
}

// Delay returns the configured delay before the auto-reply is delivered.
func (c AutoReplyConfig) Delay() time.Duration {
	if c.DelaySeconds <= 0 {
		return 0
	}
	return time.Duration(c.DelaySeconds) * time.Second
}

// Channel is a configured connection to an external provider.
type Channel struct {
	ID               int64
	TenantID         int64
	Name             string
	Kind             ChannelKind
	Type             ChannelType
	Provider         ProviderType
	Address          string
	IsActive         bool
	CredentialRef    string
	InboundTokenHash string
	DepartmentID     *int64
	LastSyncAt       *time.Time
	LastSyncError    *string
	ImportSince      *time.Time
	PostImportAction PostImportAction
	PostImportFolder string
	AutoReply        AutoReplyConfig
	FailureCount     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsPullBased reports whether the channel is polled rather than pushed to.
func (c *Channel) IsPullBased() bool {
	return c != nil && c.Kind == ChannelKindEmail && c.Provider == ProviderIMAP
}
