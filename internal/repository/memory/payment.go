package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

type paymentRepository struct {
	s *Store
}

func (r *paymentRepository) Create(ctx context.Context, intent *model.PaymentIntent) error {
	defer r.s.lockWrite(ctx)()

	if _, ok := r.s.data.payments[intent.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.data.payments[intent.ID] = *intent
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	intent, ok := r.s.data.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &intent, nil
}

func (r *paymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*model.PaymentIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*model.PaymentIntent, 0)
	for _, intent := range r.s.data.payments {
		intent := intent
		if intent.BookingID == bookingID {
			out = append(out, &intent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *paymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PaymentIntentStatus, failureReason *string, at time.Time) (*model.PaymentIntent, error) {
	defer r.s.lockWrite(ctx)()

	intent, ok := r.s.data.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if intent.Status.Settled() {
		return nil, repository.ErrConflict
	}
	intent.Status = status
	intent.FailureReason = failureReason
	intent.UpdatedAt = at
	r.s.data.payments[id] = intent
	return &intent, nil
}
