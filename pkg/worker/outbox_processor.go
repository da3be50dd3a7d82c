package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/pkg/event"
	"github.com/jwalitptl/homecare-api/pkg/logger"
	"github.com/jwalitptl/homecare-api/pkg/messaging"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
	"github.com/jwalitptl/homecare-api/pkg/repository"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	ChannelPrefix string
}

// OutboxProcessor publishes committed outbox events on the broker. A failed
// publish is retried on a later poll with exponential backoff until
// RetryAttempts is reached, after which the event is marked FAILED.
type OutboxProcessor struct {
	tx      repository.Transactor
	repo    repository.OutboxStore
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	tx repository.Transactor,
	repo repository.OutboxStore,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &OutboxProcessor{
		tx:      tx,
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch publishes one batch of due events and returns how many were
// delivered. The batch stays locked until its statuses are recorded.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	delivered := 0
	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		events, err := p.repo.GetPendingEvents(ctx, p.config.BatchSize)
		if err != nil {
			p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
			return fmt.Errorf("failed to get pending events: %w", err)
		}
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

		for _, ev := range events {
			ok, err := p.processEvent(ctx, ev)
			if err != nil {
				return err
			}
			if ok {
				delivered++
			}
		}
		return nil
	})
	return delivered, err
}

// processEvent reports whether ev was published. Only status bookkeeping
// errors are returned.
func (p *OutboxProcessor) processEvent(ctx context.Context, ev *model.OutboxEvent) (bool, error) {
	channel := event.Channel(p.config.ChannelPrefix, event.EventType(ev.EventType))
	pubErr := p.broker.Publish(ctx, channel, []byte(ev.Payload))
	if pubErr == nil {
		p.metrics.OutboxEventsProcessed.Inc()
		if err := p.repo.MarkProcessed(ctx, ev.ID, p.now().UTC()); err != nil {
			return false, fmt.Errorf("failed to mark event %s processed: %w", ev.ID, err)
		}
		return true, nil
	}

	p.metrics.OutboxEventsFailed.Inc()
	retryAt := p.nextAttempt(ev.RetryCount)
	p.logger.Error(pubErr, "Failed to publish event",
		"event_id", ev.ID.String(),
		"event_type", ev.EventType,
		"attempt", ev.RetryCount+1,
		"final", retryAt == nil)

	if err := p.repo.MarkFailed(ctx, ev.ID, pubErr.Error(), retryAt); err != nil {
		return false, fmt.Errorf("failed to mark event %s failed: %w", ev.ID, err)
	}
	return false, nil
}

// nextAttempt returns when to retry after the given number of earlier
// failures, or nil once the attempts are used up.
func (p *OutboxProcessor) nextAttempt(failures int) *time.Time {
	if failures+1 >= p.config.RetryAttempts {
		return nil
	}
	at := p.now().UTC().Add(p.config.RetryDelay << uint(failures))
	return &at
}
