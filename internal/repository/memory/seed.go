package memory

import (
	"github.com/fluxdesk/conversation-service/internal/domain"
)

// Defaults holds the reference data created by SeedDefaults.
type Defaults struct {
	OpenStatus   domain.TicketStatus
	ClosedStatus domain.TicketStatus
	Low          domain.Priority
	Normal       domain.Priority
	High         domain.Priority
	Urgent       domain.Priority
	Department   domain.Department
	ClosedFolder domain.Folder
}

// SeedDefaults creates the usual statuses, priorities, department and closed folder for a tenant.
func (s *Store) SeedDefaults(tenantID int64) Defaults {
	return Defaults{
		OpenStatus:   s.AddStatus(domain.TicketStatus{TenantID: tenantID, Name: "Open", Slug: "open", IsDefault: true, SortOrder: 1}),
		ClosedStatus: s.AddStatus(domain.TicketStatus{TenantID: tenantID, Name: "Closed", Slug: "closed", IsClosed: true, SortOrder: 9}),
		Low:          s.AddPriority(domain.Priority{TenantID: tenantID, Name: "Low", Slug: "low", SortOrder: 4}),
		Normal:       s.AddPriority(domain.Priority{TenantID: tenantID, Name: "Normal", Slug: "normal", SortOrder: 3}),
		High:         s.AddPriority(domain.Priority{TenantID: tenantID, Name: "High", Slug: "high", SortOrder: 2}),
		Urgent:       s.AddPriority(domain.Priority{TenantID: tenantID, Name: "Urgent", Slug: "urgent", SortOrder: 1}),
		Department:   s.AddDepartment(domain.Department{TenantID: tenantID, Name: "Support", IsDefault: true}),
		ClosedFolder: s.AddFolder(domain.Folder{TenantID: tenantID, Name: "Archive", ClosedOnly: true}),
	}
}

// AddStatus stores a ticket status.
func (s *Store) AddStatus(v domain.TicketStatus) domain.TicketStatus {
	s.write(func(st *state) {
		v.ID = st.nextID()
		st.statuses[v.ID] = v
	})
	return v
}

// AddPriority stores a priority.
func (s *Store) AddPriority(v domain.Priority) domain.Priority {
	s.write(func(st *state) {
		v.ID = st.nextID()
		st.priorities[v.ID] = v
	})
	return v
}

// AddDepartment stores a department.
func (s *Store) AddDepartment(v domain.Department) domain.Department {
	s.write(func(st *state) {
		v.ID = st.nextID()
		st.departments[v.ID] = v
	})
	return v
}

// AddFolder stores a folder.
func (s *Store) AddFolder(v domain.Folder) domain.Folder {
	s.write(func(st *state) {
		v.ID = st.nextID()
		st.folders[v.ID] = v
	})
	return v
}

// AddCompany stores a company.
func (s *Store) AddCompany(v domain.Company) domain.Company {
	s.write(func(st *state) {
		v.ID = st.nextID()
		st.companies[v.ID] = v
	})
	return v
}

// AddChannel stores a channel.
func (s *Store) AddChannel(v domain.Channel) domain.Channel {
	s.write(func(st *state) {
		v.ID = st.nextID()
		v.CreatedAt = s.Now()
		v.UpdatedAt = v.CreatedAt
		st.channels[v.ID] = v
	})
	return v
}

// PutChannel replaces a stored channel.
func (s *Store) PutChannel(v domain.Channel) {
	s.write(func(st *state) { st.channels[v.ID] = v })
}

// AddWebhook stores a webhook.
func (s *Store) AddWebhook(v domain.Webhook) domain.Webhook {
	s.write(func(st *state) {
		v.ID = st.nextID()
		st.webhooks[v.ID] = v
	})
	return v
}

// PutTicket replaces a stored ticket.
func (s *Store) PutTicket(v domain.Ticket) {
	s.write(func(st *state) { st.tickets[v.ID] = v })
}

// SetTenantSettings stores tenant settings.
func (s *Store) SetTenantSettings(v domain.TenantSettings) {
	s.write(func(st *state) { st.settings[v.TenantID] = v })
}

// Tickets lists stored tickets of a tenant by id.
func (s *Store) Tickets(tenantID int64) []domain.Ticket {
	var out []domain.Ticket
	s.read(func(st *state) {
		out = sortedValues(st.tickets, func(t domain.Ticket) bool { return t.TenantID == tenantID })
	})
	return out
}

// Messages lists stored messages of a tenant by id.
func (s *Store) Messages(tenantID int64) []domain.Message {
	var out []domain.Message
	s.read(func(st *state) {
		out = sortedValues(st.messages, func(m domain.Message) bool { return m.TenantID == tenantID })
	})
	return out
}

// Contacts lists stored contacts of a tenant by id.
func (s *Store) Contacts(tenantID int64) []domain.Contact {
	var out []domain.Contact
	s.read(func(st *state) {
		out = sortedValues(st.contacts, func(c domain.Contact) bool { return c.TenantID == tenantID })
	})
	return out
}

// Attachments lists stored attachments of a tenant by id.
func (s *Store) Attachments(tenantID int64) []domain.Attachment {
	var out []domain.Attachment
	s.read(func(st *state) {
		out = sortedValues(st.attachments, func(a domain.Attachment) bool { return a.TenantID == tenantID })
	})
	return out
}

// DeliveryLogs returns every stored delivery log in insertion order.
func (s *Store) DeliveryLogs() []domain.DeliveryLog {
	var out []domain.DeliveryLog
	s.read(func(st *state) {
		out = append(out, st.logs...)
	})
	return out
}
