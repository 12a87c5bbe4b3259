// Package worker assembles the ingestion, delivery and sync components into
// one process-wide graph shared by the API server and the worker CLI.
package worker

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fluxdesk/conversation-service/internal/config"
	"github.com/fluxdesk/conversation-service/internal/delivery"
	"github.com/fluxdesk/conversation-service/internal/domain"
	"github.com/fluxdesk/conversation-service/internal/events"
	"github.com/fluxdesk/conversation-service/internal/identity"
	"github.com/fluxdesk/conversation-service/internal/observability"
	"github.com/fluxdesk/conversation-service/internal/provider"
	"github.com/fluxdesk/conversation-service/internal/provider/mailbox"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository"
	"github.com/fluxdesk/conversation-service/internal/service"
	"github.com/fluxdesk/conversation-service/internal/storage"
	"github.com/fluxdesk/conversation-service/internal/syncer"
)

// Dependencies are the infrastructure handles the graph is built on.
type Dependencies struct {
	Config  *config.Config
	Store   repository.Store
	Queue   queue.Queue
	Locker  queue.Locker
	Storage storage.Storage
	Metrics *observability.Metrics
	Logger  *zap.Logger
	// EventWriter enables the Kafka event sink when set.
	EventWriter events.MessageWriter
	// Providers overrides the default registry; tests inject fakes here.
	Providers  *provider.Registry
	HTTPClient *http.Client
	Now        func() time.Time
}

// Worker holds the wired components.
type Worker struct {
	Dispatcher events.Dispatcher
	Providers  *provider.Registry
	Ingestor   *service.Ingestor
	AutoReply  *service.AutoReplyScheduler
	Sender     *delivery.MessageSender
	Webhooks   *delivery.WebhookSender
	Runner     *delivery.Runner
	Syncer     *syncer.Service
	Scheduler  *syncer.Scheduler
	Linker     *identity.CompanyLinker

	sink   *events.KafkaSink
	logger *zap.Logger
}

// New wires every component. Nothing starts until Run.
func New(deps Dependencies) *Worker {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	providers := deps.Providers
	if providers == nil {
		providers = DefaultProviders(logger, cfg.Delivery.AttemptTimeout())
	}

	w := &Worker{
		Dispatcher: events.NewInMemoryDispatcher(logger.Named("events")),
		Providers:  providers,
		logger:     logger,
	}

	fanout := delivery.NewWebhookFanout(deps.Store, deps.Queue, logger.Named("webhooks"))
	subs := []Subscriber{{Name: "webhooks", Handler: fanout.Handle}}
	if deps.EventWriter != nil {
		w.sink = events.NewKafkaSink(deps.EventWriter, logger.Named("kafka"))
		subs = append(subs, Subscriber{Name: "kafka", Handler: w.sink.Handle})
	}
	RegisterSubscribers(w.Dispatcher, deps.Metrics, subs...)

	w.AutoReply = service.NewAutoReplyScheduler(service.AutoReplyDependencies{
		Store:  deps.Store,
		Queue:  deps.Queue,
		Logger: logger.Named("autoreply"),
		Now:    now,
	})
	w.Ingestor = service.NewIngestor(service.IngestDependencies{
		Store:      deps.Store,
		Storage:    deps.Storage,
		Dispatcher: w.Dispatcher,
		AutoReply:  w.AutoReply,
		Metrics:    deps.Metrics,
		Logger:     logger.Named("ingest"),
		Now:        now,
	})
	w.Sender = delivery.NewMessageSender(delivery.MessageSenderDependencies{
		Store:           deps.Store,
		Providers:       providers,
		Dispatcher:      w.Dispatcher,
		Logger:          logger.Named("sender"),
		MessageIDDomain: cfg.Delivery.MessageIDDomain,
		Now:             now,
	})
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Delivery.AttemptTimeout()}
	}
	w.Webhooks = delivery.NewWebhookSender(delivery.WebhookSenderDependencies{
		Store:     deps.Store,
		Client:    client,
		UserAgent: cfg.Webhook.UserAgent,
		Logger:    logger.Named("webhooks"),
		Now:       now,
	})

	w.Runner = delivery.NewRunner(delivery.RunnerDependencies{
		Queue:          deps.Queue,
		Store:          deps.Store,
		Logger:         logger.Named("runner"),
		Metrics:        deps.Metrics,
		AttemptTimeout: cfg.Delivery.AttemptTimeout(),
		PollInterval:   cfg.Delivery.PollInterval(),
		Workers:        cfg.Delivery.Workers,
		Now:            now,
	})
	inbound := delivery.NewInboundHandler(deps.Store, w.Ingestor)
	w.Runner.Register(queue.JobSendMessage, w.Sender)
	w.Runner.Register(queue.JobWebhook, w.Webhooks)
	w.Runner.Register(queue.JobInboundEmail, inbound)
	w.Runner.Register(queue.JobInboundMessaging, inbound)

	w.Syncer = syncer.New(syncer.Dependencies{
		Store:       deps.Store,
		Providers:   providers,
		Ingestor:    w.Ingestor,
		Locker:      deps.Locker,
		Metrics:     deps.Metrics,
		Logger:      logger.Named("sync"),
		Now:         now,
		LockTTL:     cfg.Sync.LockTTL(),
		Concurrency: cfg.Sync.Concurrency,
	})
	schedule := cfg.Sync.Schedule
	if schedule == "" {
		schedule = "@every 1m"
	}
	w.Scheduler = syncer.NewScheduler(w.Syncer, schedule, logger.Named("sync"))
	w.Linker = identity.NewCompanyLinker(deps.Store, logger.Named("companies"))
	return w
}

// DefaultProviders registers the built-in provider implementations.
func DefaultProviders(logger *zap.Logger, dialTimeout time.Duration) *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register(domain.ProviderIMAP, mailbox.New(logger.Named("imap"), mailbox.WithDialTimeout(dialTimeout)))
	return registry
}

// Run starts the delivery runner and, when withSync is set, the sync
// scheduler. It blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, withSync bool) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Runner.Run(ctx) })
	if withSync {
		g.Go(func() error { return w.Scheduler.Run(ctx) })
	}
	w.logger.Info("worker started", zap.Bool("sync", withSync))
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Close releases the event sink.
func (w *Worker) Close() error {
	if w.sink == nil {
		return nil
	}
	return w.sink.Close()
}
