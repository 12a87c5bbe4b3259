package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/config"
	"github.com/fluxdesk/conversation-service/internal/observability"
	"github.com/fluxdesk/conversation-service/internal/worker"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "conversation-worker",
		Short:        "Background jobs, channel sync and operator tooling",
		SilenceUsage: true,
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newLinkCompaniesCmd())
	cmd.AddCommand(newHashTokenCmd())
	cmd.AddCommand(newIssueTokenCmd())

	return cmd
}

// session is the environment of a command that talks to the infrastructure.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	infra  *worker.Infra
	worker *worker.Worker
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, err
	}
	infra, err := worker.Open(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &session{cfg: cfg, logger: logger, infra: infra, worker: infra.Worker(cfg, logger)}, nil
}

func (s *session) close() {
	if err := s.worker.Close(); err != nil {
		s.logger.Warn("close event sink", zap.Error(err))
	}
	s.infra.Close()
	_ = s.logger.Sync()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
