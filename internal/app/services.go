package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/invix-erp/invix/internal/archive"
	"github.com/invix-erp/invix/internal/close"
	closehttp "github.com/invix-erp/invix/internal/close/http"
	"github.com/invix-erp/invix/internal/events"
	"github.com/invix-erp/invix/internal/history"
	"github.com/invix-erp/invix/internal/observability"
	"github.com/invix-erp/invix/internal/platform/cache"
	"github.com/invix-erp/invix/internal/platform/db"
	"github.com/invix-erp/invix/internal/platform/lock"
	"github.com/invix-erp/invix/internal/records"
	"github.com/invix-erp/invix/internal/rollover"
	"github.com/invix-erp/invix/internal/storage"
	"github.com/invix-erp/invix/internal/storage/memstore"
	"github.com/invix-erp/invix/internal/storage/pgstore"
	"github.com/invix-erp/invix/jobs"
)

// Services holds everything both binaries wire from one Config.
type Services struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Store   storage.Store
	Tenants storage.TenantLister

	Periods  *close.Service
	Records  *records.Service
	History  *history.Aggregator
	Archive  *archive.Service
	Enqueuer *jobs.Client

	closers []func() error
}

// NewServices connects the configured backends and builds the domain services.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	if err := s.connect(ctx); err != nil {
		s.Close()
		return nil, err
	}
	sink, err := s.archiveSink(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	var locker lock.Locker = lock.NewMemory()
	var summaries *history.Cache
	if s.Redis != nil {
		locker = lock.NewRedis(s.Redis)
		summaries = history.NewCache(s.Redis, cfg.SummaryCacheTTL)
	}
	publisher := s.publisher()

	s.History = history.NewAggregator(s.Store, summaries, logger)
	s.Records = records.NewService(s.Store, records.NewPartitioner(s.Store), logger)
	s.Archive = archive.NewService(archive.Config{
		Store:       s.Store,
		Sink:        sink,
		Mode:        archive.Mode(cfg.ArchiveMode),
		Locker:      locker,
		Publisher:   publisher,
		Metrics:     s.Metrics,
		Invalidator: s.History,
		Logger:      logger,
	})

	var scheduler close.ArchiveScheduler = archive.DirectScheduler{Service: s.Archive}
	if cfg.ArchiveAsync {
		s.Enqueuer = jobs.NewClient(s.redisOptions().AsynqOptions(), s.Metrics.Jobs(), logger)
		s.closers = append(s.closers, s.Enqueuer.Close)
		scheduler = s.Enqueuer
	}
	s.Periods = close.NewService(close.ServiceConfig{
		Store:     s.Store,
		Engine:    rollover.NewEngine(rollover.DefaultPolicies()...),
		Locker:    locker,
		LockTTL:   cfg.LockTTL,
		Archiver:  scheduler,
		Publisher: publisher,
		Metrics:   s.Metrics,
		Logger:    logger,
	})
	return s, nil
}

func (s *Services) connect(ctx context.Context) error {
	cfg := s.Config
	switch cfg.StorageDriver {
	case StoragePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return err
		}
		s.Pool = pool
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		store := pgstore.New(pool)
		if cfg.PGMigrate {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
		s.Store, s.Tenants = store, store
	default:
		store := memstore.New()
		s.Store, s.Tenants = store, store
	}
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, s.redisOptions())
		if err != nil {
			return err
		}
		s.Redis = client
		s.closers = append(s.closers, client.Close)
	}
	return nil
}

func (s *Services) redisOptions() cache.Options {
	return cache.Options{Addr: s.Config.RedisAddr}
}

func (s *Services) archiveSink(ctx context.Context) (archive.Sink, error) {
	cfg := s.Config
	switch cfg.ArchiveSink {
	case SinkFile:
		return archive.FileSink{Dir: cfg.ArchiveDir}, nil
	case SinkS3:
		client, err := archive.NewS3Client(ctx, archive.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return archive.NewS3Sink(client, cfg.S3Bucket, cfg.S3Prefix), nil
	case SinkTable:
		if s.Pool == nil {
			return nil, errors.New("app: table sink needs the postgres driver")
		}
		return archive.NewTableSink(s.Pool), nil
	case SinkNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("app: unknown archive sink %q", cfg.ArchiveSink)
	}
}

func (s *Services) publisher() events.Publisher {
	if len(s.Config.KafkaBrokers) == 0 {
		return events.LogPublisher{Logger: s.Logger}
	}
	p := events.NewKafkaPublisher(s.Config.KafkaBrokers, s.Config.KafkaTopic)
	s.closers = append(s.closers, p.Close)
	return p
}

// Handler builds the JSON API over the services.
func (s *Services) Handler() *closehttp.Handler {
	return closehttp.NewHandler(closehttp.Config{
		Periods: s.Periods,
		Records: s.Records,
		History: s.History,
		Archive: s.Archive,
		Logger:  s.Logger,
	})
}

// Checks lists the readiness probes of the connected backends.
func (s *Services) Checks() map[string]Pinger {
	checks := map[string]Pinger{}
	if s.Pool != nil {
		checks["postgres"] = s.Pool
	}
	if s.Redis != nil {
		checks["redis"] = cache.Pinger{Client: s.Redis}
	}
	return checks
}

// Close releases connections in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Logger.Warn("close dependency", slog.Any("error", err))
		}
	}
	s.closers = nil
}
