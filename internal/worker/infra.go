package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fluxdesk/conversation-service/internal/config"
	"github.com/fluxdesk/conversation-service/internal/events"
	"github.com/fluxdesk/conversation-service/internal/observability"
	"github.com/fluxdesk/conversation-service/internal/persistence"
	"github.com/fluxdesk/conversation-service/internal/queue"
	"github.com/fluxdesk/conversation-service/internal/repository"
	"github.com/fluxdesk/conversation-service/internal/repository/memory"
	"github.com/fluxdesk/conversation-service/internal/storage"
)

// Infra owns the external connections of a process.
type Infra struct {
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Store    repository.Store
	Queue    queue.Queue
	Locker   queue.Locker
	Storage  *storage.FilesystemStorage
	Metrics  *observability.Metrics

	kafka events.MessageWriter
}

// Open connects to Postgres, Redis and, when enabled, Kafka. Without a DSN the
// store is in memory, and without Redis the queue and locks are in-process;
// both only suit a single process.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Infra, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	files, err := storage.NewFilesystemStorage(cfg.Storage.RootDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		pg.Close()
		return nil, err
	}

	infra := &Infra{
		Postgres: pg,
		Redis:    rdb,
		Storage:  files,
		Metrics:  observability.NewMetrics(),
	}
	if pg.Enabled() {
		infra.Store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		infra.Store = memory.New()
	}
	if rdb.Enabled() {
		infra.Queue = queue.NewRedisQueue(rdb.Client, cfg.Redis.KeyPrefix)
		infra.Locker = queue.NewRedisLocker(rdb.Client, cfg.Redis.KeyPrefix)
	} else {
		infra.Queue = queue.NewMemoryQueue()
		infra.Locker = queue.NewMemoryLocker()
	}
	if cfg.Kafka.Enabled {
		infra.kafka = events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("kafka event sink enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	return infra, nil
}

// Worker builds the component graph on top of the connections.
func (i *Infra) Worker(cfg *config.Config, logger *zap.Logger) *Worker {
	return New(Dependencies{
		Config:      cfg,
		Store:       i.Store,
		Queue:       i.Queue,
		Locker:      i.Locker,
		Storage:     i.Storage,
		Metrics:     i.Metrics,
		Logger:      logger,
		EventWriter: i.kafka,
	})
}

// Close releases every connection.
func (i *Infra) Close() {
	i.Redis.Close()
	i.Postgres.Close()
}
