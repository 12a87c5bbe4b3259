package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/fluxdesk/conversation-service/internal/api/http"
	"github.com/fluxdesk/conversation-service/internal/api/http/handlers"
	"github.com/fluxdesk/conversation-service/internal/auth"
	"github.com/fluxdesk/conversation-service/internal/config"
	"github.com/fluxdesk/conversation-service/internal/observability"
	"github.com/fluxdesk/conversation-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	infra, err := worker.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open infrastructure", zap.Error(err))
	}
	defer infra.Close()

	// The API process ingests during manual syncs, so it needs the full graph
	// for event fanout; the job runner itself runs in cmd/worker.
	components := infra.Worker(cfg, logger)
	defer components.Close() //nolint:errcheck

	repos := infra.Store.Repos()
	deps := map[string]handlers.Pinger{}
	if infra.Postgres.Enabled() {
		deps["postgres"] = infra.Postgres
	}
	if infra.Redis.Enabled() {
		deps["redis"] = infra.Redis
	}

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: cfg.App.BodyLimitBytes,
	})
	httptransport.RegisterMiddlewares(app, logger, infra.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:            handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Inbound:           handlers.NewInboundHandler(infra.Queue, logger.Named("inbound")),
		Channels:          handlers.NewChannelsHandler(components.Syncer, repos.DeliveryLogs),
		Webhooks:          handlers.NewWebhooksHandler(repos.Webhooks, repos.DeliveryLogs),
		Messages:          handlers.NewMessagesHandler(components.Sender, infra.Queue),
		AuthMiddleware:    auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)),
		ChannelMiddleware: auth.NewChannelMiddleware(repos.Channels, "channelID"),
		Metrics:           infra.Metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
