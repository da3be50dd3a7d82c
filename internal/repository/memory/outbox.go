package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

type outboxRepository struct {
	s *Store
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	defer r.s.lockWrite(ctx)()

	r.s.data.outbox[event.ID] = *event
	return nil
}

func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	out := make([]*model.OutboxEvent, 0)
	for _, e := range r.s.data.outbox {
		e := e
		if e.Status != model.OutboxStatusPending {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	defer r.s.lockWrite(ctx)()

	e, ok := r.s.data.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = model.OutboxStatusProcessed
	e.ProcessedAt = ptr(at)
	e.ErrorMessage = nil
	e.UpdatedAt = at
	r.s.data.outbox[id] = e
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error {
	defer r.s.lockWrite(ctx)()

	e, ok := r.s.data.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.RetryCount++
	e.ErrorMessage = ptr(errMsg)
	e.RetryAt = retryAt
	if retryAt == nil {
		e.Status = model.OutboxStatusFailed
	}
	e.UpdatedAt = time.Now()
	r.s.data.outbox[id] = e
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	defer r.s.lockWrite(ctx)()

	var n int64
	for id, e := range r.s.data.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.data.outbox, id)
			n++
		}
	}
	return n, nil
}
