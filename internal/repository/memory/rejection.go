package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

type rejectionRepository struct {
	s *Store
}

func (r *rejectionRepository) Create(ctx context.Context, req *model.RejectionRequest) error {
	defer r.s.lockWrite(ctx)()

	for _, existing := range r.s.data.rejections {
		if existing.BookingID == req.BookingID &&
			existing.ProviderID == req.ProviderID &&
			existing.Status == model.RejectionStatusPending {
			return repository.ErrDuplicate
		}
	}
	r.s.data.rejections[req.ID] = *req
	return nil
}

func (r *rejectionRepository) Get(ctx context.Context, id uuid.UUID) (*model.RejectionRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.data.rejections[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (r *rejectionRepository) ListByStatus(ctx context.Context, status model.RejectionStatus) ([]*model.RejectionRequest, error) {
	return r.list(func(req *model.RejectionRequest) bool { return req.Status == status }), nil
}

func (r *rejectionRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*model.RejectionRequest, error) {
	return r.list(func(req *model.RejectionRequest) bool { return req.BookingID == bookingID }), nil
}

func (r *rejectionRepository) list(keep func(*model.RejectionRequest) bool) []*model.RejectionRequest {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*model.RejectionRequest, 0)
	for _, req := range r.s.data.rejections {
		req := req
		if keep(&req) {
			out = append(out, &req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out
}

func (r *rejectionRepository) Resolve(ctx context.Context, id uuid.UUID, res model.Resolution) (*model.RejectionRequest, error) {
	defer r.s.lockWrite(ctx)()

	req, ok := r.s.data.rejections[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if req.Status != model.RejectionStatusPending {
		return nil, repository.ErrConflict
	}

	req.Status = res.Status
	if res.AdminNotes != "" {
		req.AdminNotes = ptr(res.AdminNotes)
	}
	req.ResolvedBy = ptr(res.ResolvedBy)
	req.ResolvedAt = ptr(res.ResolvedAt)
	r.s.data.rejections[id] = req
	return &req, nil
}
