package domain

import "time"

// SubjectType differentiates operators from service accounts.
type SubjectType string

const (
	SubjectTypeOperator SubjectType = "OPERATOR"
	SubjectTypeService  SubjectType = "SERVICE"
)

// OperatorRole gates access to operator endpoints.
type OperatorRole string

const (
	OperatorRoleAdmin  OperatorRole = "ADMIN"
	OperatorRoleAgent  OperatorRole = "AGENT"
	OperatorRoleViewer OperatorRole = "VIEWER"
)

// Token represents issued operator token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	TenantID  int64
	Role      OperatorRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}
