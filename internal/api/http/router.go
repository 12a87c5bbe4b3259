package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/fluxdesk/conversation-service/internal/api/http/handlers"
	"github.com/fluxdesk/conversation-service/internal/auth"
	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health            *handlers.HealthHandler
	Inbound           *handlers.InboundHandler
	Channels          *handlers.ChannelsHandler
	Webhooks          *handlers.WebhooksHandler
	Messages          *handlers.MessagesHandler
	AuthMiddleware    *auth.AuthMiddleware
	ChannelMiddleware *auth.ChannelMiddleware
	Metrics           *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	inbound := app.Group("/inbound")
	inbound.Post("/email/:channelID", cfg.ChannelMiddleware.Handle, cfg.Inbound.Email)
	inbound.Post("/messaging/:channelID", cfg.ChannelMiddleware.Handle, cfg.Inbound.Messaging)

	// role checks are per route; a nested Group would apply them to the whole prefix
	operators := auth.RequireRole(domain.OperatorRoleAdmin, domain.OperatorRoleAgent)
	admins := auth.RequireRole(domain.OperatorRoleAdmin)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	api.Get("/channels/:id/logs", cfg.Channels.Logs)
	api.Post("/channels/:id/sync", operators, cfg.Channels.Sync)
	api.Post("/messages/:id/retry", operators, cfg.Messages.Retry)
	api.Get("/webhooks/:id/logs", cfg.Webhooks.Logs)
	api.Post("/webhooks/:id/enable", admins, cfg.Webhooks.Enable)
}
