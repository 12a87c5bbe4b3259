package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// Issuer is stamped into every operator token and required when parsing.
const Issuer = "conversation-service"

const clockSkew = 30 * time.Second

// ErrInvalidClaims is wrapped by ParseToken when a well-signed token carries
// claims the service cannot act on.
var ErrInvalidClaims = errors.New("invalid token claims")

// TokenManager issues and validates operator bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager builds a manager; a non-positive TTL means one hour.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute, now: time.Now}
}

// Claims describes the JWT payload. Every token is bound to exactly one tenant.
type Claims struct {
	SubjectID string              `json:"sub"`
	Subject   domain.SubjectType  `json:"subject"`
	TenantID  int64               `json:"tenant_id"`
	Role      domain.OperatorRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs a token for an operator or a service account.
func (tm *TokenManager) GenerateToken(subjectID string, subject domain.SubjectType, tenantID int64, role domain.OperatorRole) (string, time.Time, error) {
	issuedAt := tm.now()
	expiresAt := issuedAt.Add(tm.ttl)
	claims := &Claims{
		SubjectID: subjectID,
		Subject:   subject,
		TenantID:  tenantID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies signature, issuer and expiry, then checks that the
// tenant is set and that operators carry a known role.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}

	if claims.TenantID <= 0 {
		return nil, fmt.Errorf("%w: no tenant", ErrInvalidClaims)
	}
	if claims.Subject == domain.SubjectTypeOperator {
		switch claims.Role {
		case domain.OperatorRoleAdmin, domain.OperatorRoleAgent, domain.OperatorRoleViewer:
		default:
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidClaims, claims.Role)
		}
	}
	return claims, nil
}
