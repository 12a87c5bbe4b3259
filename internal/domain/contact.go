package domain

import (
	"strings"
	"time"
)

// IdentifierType names the channel-specific key a contact is known by.
type IdentifierType string

const (
	IdentifierEmail         IdentifierType = "email"
	IdentifierInstagramID   IdentifierType = "instagram_id"
	IdentifierWhatsAppPhone IdentifierType = "whatsapp_phone"
	IdentifierFacebookID    IdentifierType = "facebook_id"
)

// IdentifierTypeFor maps a messaging channel type to its contact identifier.
func IdentifierTypeFor(t ChannelType) IdentifierType {
	switch t {
	case ChannelTypeInstagram:
		return IdentifierInstagramID
	case ChannelTypeWhatsApp:
		return IdentifierWhatsAppPhone
	case ChannelTypeFacebook:
		return IdentifierFacebookID
	default:
		return IdentifierEmail
	}
}

// NormalizeIdentifier canonicalizes an identifier value; email addresses compare case-insensitively.
func NormalizeIdentifier(t IdentifierType, value string) string {
	value = strings.TrimSpace(value)
	if t == IdentifierEmail {
		return strings.ToLower(value)
	}
	return value
}

// EmailDomain returns the lowercased domain part of an address.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

// ContactIdentifier binds a channel identifier to a contact.
type ContactIdentifier struct {
	Type  IdentifierType
	Value string
}

// Contact is a tenant-scoped customer identity.
type Contact struct {
	ID                 int64
	TenantID           int64
	Name               string
	Email              *string
	IsPlaceholderEmail bool
	Username           string
	AvatarURL          string
	CompanyID          *int64
	Identifiers        []ContactIdentifier
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasDeliverableEmail reports whether the contact has a real mailbox.
func (c *Contact) HasDeliverableEmail() bool {
	return c != nil && c.Email != nil && *c.Email != "" && !c.IsPlaceholderEmail
}

// Company groups contacts by registered email domains.
type Company struct {
	ID       int64
	TenantID int64
	Name     string
	Domains  []string
}
