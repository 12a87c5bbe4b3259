package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/repository"
	apperrors "github.com/fluxdesk/conversation-service/pkg/util/errorutil"
)

const (
	principalKey = "auth_principal"
	channelKey   = "auth_channel"

	// ChannelTokenHeader carries the per-channel inbound secret.
	ChannelTokenHeader = "X-Channel-Token"
)

// Principal represents the authenticated operator or service account.
type Principal struct {
	SubjectType domain.SubjectType
	SubjectID   string
	TenantID    int64
	Role        domain.OperatorRole
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	switch claims.Subject {
	case domain.SubjectTypeOperator, domain.SubjectTypeService:
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(principalKey, &Principal{
		SubjectType: claims.Subject,
		SubjectID:   claims.SubjectID,
		TenantID:    claims.TenantID,
		Role:        claims.Role,
	})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// ChannelMiddleware authenticates provider webhooks against the channel's inbound token.
type ChannelMiddleware struct {
	channels repository.ChannelRepository
	param    string
}

// NewChannelMiddleware reads the channel id from the named route parameter.
func NewChannelMiddleware(channels repository.ChannelRepository, param string) *ChannelMiddleware {
	return &ChannelMiddleware{channels: channels, param: param}
}

// Handle resolves the channel and checks the presented token. Unknown channels
// and bad tokens are indistinguishable to the caller.
func (m *ChannelMiddleware) Handle(c *fiber.Ctx) error {
	id, err := c.ParamsInt(m.param)
	if err != nil || id <= 0 {
		return apperrors.NewUnauthorized("invalid channel token")
	}
	ch, err := m.channels.GetByID(c.UserContext(), int64(id))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NewUnauthorized("invalid channel token")
		}
		return apperrors.MapError(err)
	}
	if err := CompareToken(ch.InboundTokenHash, c.Get(ChannelTokenHeader)); err != nil {
		return apperrors.NewUnauthorized("invalid channel token")
	}
	c.Locals(channelKey, ch)
	return c.Next()
}

// ChannelFromContext returns the channel authenticated by ChannelMiddleware.
func ChannelFromContext(c *fiber.Ctx) (*domain.Channel, bool) {
	ch, ok := c.Locals(channelKey).(*domain.Channel)
	return ch, ok
}
