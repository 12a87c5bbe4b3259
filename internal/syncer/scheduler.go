package syncer

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers SyncAll on a cron schedule. A cycle still running when
// the next one is due is skipped.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	logger   *zap.Logger
}

// NewScheduler builds a Scheduler for a standard cron spec or descriptor such as "@every 1m".
func NewScheduler(service *Service, schedule string, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		service:  service,
		schedule: schedule,
		logger:   logger,
	}
}

// Run schedules the sync cycle and blocks until ctx is done, then waits for a
// running cycle to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		reports, err := s.service.SyncAll(ctx)
		if err != nil {
			s.logger.Error("sync cycle failed", zap.Error(err))
			return
		}
		failed := 0
		for _, r := range reports {
			if r.Err != nil {
				failed++
			}
		}
		s.logger.Info("sync cycle finished", zap.Int("channels", len(reports)), zap.Int("failed", failed))
	})
	if err != nil {
		return fmt.Errorf("schedule sync %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("sync scheduler started", zap.String("schedule", s.schedule))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("sync scheduler stopped")
	return nil
}
