package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/observability"
	"github.com/fluxdesk/conversation-service/internal/provider"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository"
	"github.com/fluxdesk/conversation-service/internal/service"
)

// Ingestor ingests one fetched email.
type Ingestor interface {
	IngestEmail(ctx context.Context, channel *domain.Channel, email *domain.InboundEmail) (*service.IngestResult, error)
}

// Report summarizes one channel sync.
type Report struct {
	TenantID   int64
	ChannelID  int64
	Since      time.Time
	Fetched    int
	Ingested   int
	Duplicates int
	Failed     int
	// Skipped is set when another worker held the channel lock.
	Skipped bool
	Err     error
}

// Service synchronizes pull-based channels.
type Service struct {
	store       repository.Store
	providers   *provider.Registry
	ingestor    Ingestor
	locker      queue.Locker
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
	lockTTL     time.Duration
	concurrency int
}

// Dependencies bundles collaborators for the sync service.
type Dependencies struct {
	Store       repository.Store
	Providers   *provider.Registry
	Ingestor    Ingestor
	Locker      queue.Locker
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Now         func() time.Time
	LockTTL     time.Duration
	Concurrency int
}

// New constructs the sync service.
func New(deps Dependencies) *Service {
	s := &Service{
		store:       deps.Store,
		providers:   deps.Providers,
		ingestor:    deps.Ingestor,
		locker:      deps.Locker,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Now,
		lockTTL:     deps.LockTTL,
		concurrency: deps.Concurrency,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.locker == nil {
		s.locker = queue.NewMemoryLocker()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 5 * time.Minute
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	return s
}

// SyncAll syncs every active pull-based channel; different channels run in
// parallel up to the configured concurrency.
func (s *Service) SyncAll(ctx context.Context) ([]Report, error) {
	channels, err := s.store.Repos().Channels.ListActivePull(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pull channels: %w", err)
	}
	reports := make([]Report, len(channels))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range channels {
		ch := channels[i]
		g.Go(func() error {
			reports[i] = s.sync(ctx, &ch)
			return nil
		})
	}
	_ = g.Wait()
	return reports, nil
}

// SyncChannel syncs one channel now.
func (s *Service) SyncChannel(ctx context.Context, tenantID, channelID int64) (Report, error) {
	ch, err := s.store.Repos().Channels.Get(ctx, tenantID, channelID)
	if err != nil {
		return Report{}, err
	}
	if !ch.IsActive {
		return Report{}, domain.NewConfigError("channel %d is inactive", channelID)
	}
	if !ch.IsPullBased() {
		return Report{}, domain.NewConfigError("channel %d is not pull-based", channelID)
	}
	report := s.sync(ctx, ch)
	return report, report.Err
}

func (s *Service) sync(ctx context.Context, ch *domain.Channel) Report {
	start := s.now()
	report := Report{TenantID: ch.TenantID, ChannelID: ch.ID, Since: Since(ch, start)}
	logger := s.logger.With(zap.Int64("tenant_id", ch.TenantID), zap.Int64("channel_id", ch.ID))

	unlock, ok, err := s.locker.TryLock(ctx, lockKey(ch), s.lockTTL)
	if err != nil {
		report.Err = err
		logger.Warn("sync lock unavailable", zap.Error(err))
		return report
	}
	if !ok {
		report.Skipped = true
		logger.Debug("sync already running")
		return report
	}
	defer unlock()

	impl, _ := s.providers.Get(ch.Provider)
	fetcher, err := s.providers.Fetcher(ch.Provider)
	if err == nil {
		var fetched []provider.FetchedEmail
		fetched, err = fetcher.FetchSince(ctx, ch, report.Since)
		report.Fetched = len(fetched)
		if err == nil {
			s.ingestAll(ctx, logger, impl, ch, fetched, &report)
		}
	}

	if err != nil {
		report.Err = fmt.Errorf("fetch: %w", err)
		s.metrics.RecordSync(string(ch.Provider), "failure")
		if markErr := s.store.Repos().Channels.MarkSyncFailed(context.WithoutCancel(ctx), ch.TenantID, ch.ID, err.Error()); markErr != nil {
			logger.Error("record sync failure", zap.Error(markErr))
		}
		s.audit(ctx, logger, ch, start, report)
		logger.Warn("channel sync failed", zap.Error(err))
		return report
	}

	// The watermark moves to the sync start even when single items failed;
	// the overlap window and dedup cover their retry.
	if err := s.store.Repos().Channels.MarkSynced(context.WithoutCancel(ctx), ch.TenantID, ch.ID, start); err != nil {
		report.Err = fmt.Errorf("advance watermark: %w", err)
		logger.Error("advance sync watermark", zap.Error(err))
	}
	s.metrics.RecordSync(string(ch.Provider), "success")
	s.audit(ctx, logger, ch, start, report)
	logger.Info("channel synced",
		zap.Time("since", report.Since),
		zap.Int("fetched", report.Fetched),
		zap.Int("ingested", report.Ingested),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (s *Service) ingestAll(ctx context.Context, logger *zap.Logger, impl any, ch *domain.Channel, fetched []provider.FetchedEmail, report *Report) {
	for i := range fetched {
		item := &fetched[i]
		if ctx.Err() != nil {
			report.Failed += len(fetched) - i
			return
		}
		res, err := s.ingestor.IngestEmail(ctx, ch, &item.Email)
		if err != nil {
			report.Failed++
			logger.Warn("fetched message not ingested", zap.String("ref", item.Ref), zap.Error(err))
			continue
		}
		if res.Duplicate {
			report.Duplicates++
		} else {
			report.Ingested++
		}
		if item.Ref == "" {
			continue
		}
		if err := provider.ApplyPostImport(ctx, impl, ch, item.Ref); err != nil {
			logger.Warn("post-import action failed",
				zap.String("action", string(ch.PostImportAction)),
				zap.String("ref", item.Ref),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) audit(ctx context.Context, logger *zap.Logger, ch *domain.Channel, start time.Time, report Report) {
	channelID := ch.ID
	entry := &domain.DeliveryLog{
		TenantID:     ch.TenantID,
		Kind:         domain.DeliveryKindInboundSync,
		Status:       domain.AttemptSuccess,
		Attempt:      1,
		ChannelID:    &channelID,
		ResponseBody: fmt.Sprintf("fetched=%d ingested=%d duplicates=%d failed=%d", report.Fetched, report.Ingested, report.Duplicates, report.Failed),
		Duration:     s.now().Sub(start),
		StartedAt:    start,
	}
	if report.Err != nil {
		entry.Status = domain.AttemptFailure
		entry.Error = report.Err.Error()
		var perr *provider.Error
		if errors.As(report.Err, &perr) {
			entry.StatusCode = perr.StatusCode
		}
	}
	if err := s.store.Repos().DeliveryLogs.Create(context.WithoutCancel(ctx), entry); err != nil {
		logger.Error("write sync log", zap.Error(err))
	}
}

func lockKey(ch *domain.Channel) string {
	return "sync:channel:" + strconv.FormatInt(ch.ID, 10)
}
