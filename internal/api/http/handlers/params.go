package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/fluxdesk/conversation-service/internal/auth"
	apperrors "github.com/fluxdesk/conversation-service/pkg/util/errorutil"
)

func operatorPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func idParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid "+name, map[string]any{name: c.Params(name)})
	}
	return int64(id), nil
}
