package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

type bookingRepository struct {
	s *Store
}

func (r *bookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	defer r.s.lockWrite(ctx)()

	if _, ok := r.s.data.bookings[booking.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.data.bookings[booking.ID] = *booking
	return nil
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.data.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r *bookingRepository) List(ctx context.Context, filters model.BookingFilters) ([]*model.Booking, error) {
	return r.list(func(b *model.Booking) bool {
		if filters.CustomerID != nil && b.CustomerID != *filters.CustomerID {
			return false
		}
		if filters.ProviderID != nil && !b.AssignedTo(*filters.ProviderID) {
			return false
		}
		if filters.Status != "" && b.Status != filters.Status {
			return false
		}
		return true
	}), nil
}

func (r *bookingRepository) ListUnassigned(ctx context.Context) ([]*model.Booking, error) {
	return r.list((*model.Booking).NeedsAttention), nil
}

func (r *bookingRepository) list(keep func(*model.Booking) bool) []*model.Booking {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*model.Booking, 0)
	for _, b := range r.s.data.bookings {
		b := b
		if keep(&b) {
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

// update applies fn to the stored booking under the store lock. fn returns
// false when its precondition does not hold.
func (r *bookingRepository) update(ctx context.Context, id uuid.UUID, fn func(b *model.Booking) bool) (*model.Booking, error) {
	defer r.s.lockWrite(ctx)()

	b, ok := r.s.data.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !fn(&b) {
		return nil, repository.ErrConflict
	}
	r.s.data.bookings[id] = b
	return &b, nil
}

func (r *bookingRepository) AssignProvider(ctx context.Context, id, providerID uuid.UUID, at time.Time) (*model.Booking, error) {
	return r.update(ctx, id, func(b *model.Booking) bool {
		if !hasStatus(b.Status, model.TransitionSources(model.BookingStatusConfirmed)) {
			return false
		}
		b.ProviderID = ptr(providerID)
		b.Status = model.BookingStatusConfirmed
		b.UpdatedAt = at
		return true
	})
}

func (r *bookingRepository) Transition(ctx context.Context, id uuid.UUID, from []model.BookingStatus, to model.BookingStatus, at time.Time) (*model.Booking, error) {
	return r.update(ctx, id, func(b *model.Booking) bool {
		if !hasStatus(b.Status, from) {
			return false
		}
		b.Status = to
		b.UpdatedAt = at
		return true
	})
}

func (r *bookingRepository) Cancel(ctx context.Context, id uuid.UUID, from []model.BookingStatus, reason string, by uuid.UUID, at time.Time) (*model.Booking, error) {
	return r.update(ctx, id, func(b *model.Booking) bool {
		if !hasStatus(b.Status, from) {
			return false
		}
		b.Status = model.BookingStatusCancelled
		if reason != "" {
			b.CancellationReason = ptr(reason)
		}
		b.CancelledBy = ptr(by)
		b.UpdatedAt = at
		return true
	})
}

func (r *bookingRepository) ReleaseProvider(ctx context.Context, id, providerID uuid.UUID, from []model.BookingStatus, at time.Time) (*model.Booking, error) {
	return r.update(ctx, id, func(b *model.Booking) bool {
		if !b.AssignedTo(providerID) || !hasStatus(b.Status, from) {
			return false
		}
		b.ProviderID = nil
		b.Status = model.BookingStatusPending
		b.UpdatedAt = at
		return true
	})
}

func (r *bookingRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus, at time.Time) (*model.Booking, error) {
	return r.update(ctx, id, func(b *model.Booking) bool {
		if !hasPaymentStatus(b.PaymentStatus, from) {
			return false
		}
		b.PaymentStatus = to
		b.UpdatedAt = at
		return true
	})
}

func hasPaymentStatus(s model.PaymentStatus, from []model.PaymentStatus) bool {
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}
