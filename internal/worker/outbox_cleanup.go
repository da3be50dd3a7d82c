package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/homecare-api/pkg/metrics"
)

type processedEventDeleter interface {
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// OutboxCleanupWorker removes delivered outbox events once they are older
// than the retention period. Failed events are kept for inspection.
type OutboxCleanupWorker struct {
	repo            processedEventDeleter
	retention       time.Duration
	cleanupInterval time.Duration
	logger          *zerolog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
}

func NewOutboxCleanupWorker(repo processedEventDeleter, retention, cleanupInterval time.Duration, logger *zerolog.Logger, m *metrics.Metrics) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:            repo,
		retention:       retention,
		cleanupInterval: cleanupInterval,
		logger:          logger,
		metrics:         m,
		now:             time.Now,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				w.logger.Error().Err(err).Msg("outbox cleanup failed")
			}
		}
	}
}

func (w *OutboxCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().UTC().Add(-w.retention)

	rows, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup outbox events: %w", err)
	}

	w.metrics.OutboxEventsDeleted.Add(float64(rows))
	w.logger.Info().Int64("deleted", rows).Time("cutoff", cutoff).Msg("cleaned up processed outbox events")
	return rows, nil
}
