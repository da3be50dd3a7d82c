// Package bootstrap opens the stores and brokers shared by the api and worker
// binaries and runs the background workers.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/homecare-api/internal/config"
	"github.com/jwalitptl/homecare-api/internal/email"
	"github.com/jwalitptl/homecare-api/internal/repository"
	"github.com/jwalitptl/homecare-api/internal/repository/memory"
	"github.com/jwalitptl/homecare-api/internal/repository/postgres"
	internalWorker "github.com/jwalitptl/homecare-api/internal/worker"
	"github.com/jwalitptl/homecare-api/pkg/logger"
	"github.com/jwalitptl/homecare-api/pkg/messaging"
	memoryBroker "github.com/jwalitptl/homecare-api/pkg/messaging/memory"
	"github.com/jwalitptl/homecare-api/pkg/messaging/redis"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
	"github.com/jwalitptl/homecare-api/pkg/security"
	"github.com/jwalitptl/homecare-api/pkg/worker"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the selected repository backend.
type Store struct {
	*repository.Repositories
	Pinger Pinger
	// DB is nil for the memory driver.
	DB *sqlx.DB
}

func (s *Store) InMemory() bool {
	return s.DB == nil
}

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

type dbPinger struct {
	db *sqlx.DB
}

func (p dbPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// OpenStore connects to postgres, or builds a seeded in-memory store when
// database.driver is "memory".
func OpenStore(ctx context.Context, cfg *config.Config, log *zerolog.Logger) (*Store, error) {
	if cfg.Database.Driver == "memory" {
		mem := memory.NewStore()
		if err := memory.Seed(ctx, mem, cfg.Dev, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to seed memory store: %w", err)
		}
		log.Warn().
			Int("services", len(cfg.Dev.Services)).
			Int("providers", len(cfg.Dev.Providers)).
			Msg("using in-memory store, data is lost on exit")
		return &Store{Repositories: mem.Repositories(), Pinger: mem}, nil
	}

	enc, err := security.NewEncryptorFromHex(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to build encryptor: %w", err)
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	version, err := postgres.MigrationVersion(ctx, db)
	if err != nil {
		log.Warn().Err(err).Msg("could not read schema version")
	} else {
		log.Info().Int64("schema_version", version).Msg("connected to database")
	}

	return &Store{
		Repositories: postgres.NewRepositories(db, enc),
		Pinger:       dbPinger{db: db},
		DB:           db,
	}, nil
}

type Broker interface {
	messaging.Broker
	Pinger
}

// OpenBroker returns the in-process broker for memory stores, Redis otherwise.
func OpenBroker(ctx context.Context, cfg *config.Config, inMemory bool, log *zerolog.Logger) (Broker, error) {
	if inMemory {
		return memoryBroker.NewBroker(0), nil
	}
	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, log)
	if err != nil {
		return nil, err
	}
	return broker, nil
}

// NewMailer sends through SMTP when e-mail is enabled and logs otherwise.
func NewMailer(cfg config.EmailConfig, log *zerolog.Logger) email.Service {
	if !cfg.Enabled {
		return email.NewLogSender(log)
	}
	return email.NewSMTPSender(email.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	})
}

// RunWorkers runs the outbox processor, the notification dispatcher and the
// outbox cleanup until ctx is done. A dispatcher failure stops the others.
func RunWorkers(ctx context.Context, cfg *config.Config, store *Store, broker messaging.Broker, log *logger.Logger, m *metrics.Metrics) error {
	location, err := cfg.Booking.Location()
	if err != nil {
		return err
	}
	zl := log.Zerolog()

	processor := worker.NewOutboxProcessor(store.Tx, store.Outbox, broker, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		ChannelPrefix: cfg.Redis.ChannelPrefix,
	}, log, m)

	dispatcher := internalWorker.NewNotificationDispatcher(
		broker,
		store.Providers,
		store.Catalog,
		NewMailer(cfg.Email, zl),
		cfg.Redis.ChannelPrefix,
		location,
		zl,
		m,
	)

	cleanup := internalWorker.NewOutboxCleanupWorker(store.Outbox, cfg.Outbox.Retention, cfg.Outbox.CleanupInterval, zl, m)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg          sync.WaitGroup
		dispatchErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			dispatchErr = err
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()
	wg.Wait()

	return dispatchErr
}
