package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

const rejectionColumns = `id, booking_id, provider_id, reason, status, admin_notes,
	resolved_by, requested_at, resolved_at`

type rejectionRepository struct {
	BaseRepository
}

func NewRejectionRepository(base BaseRepository) repository.RejectionRepository {
	return &rejectionRepository{base}
}

func (r *rejectionRepository) Create(ctx context.Context, req *model.RejectionRequest) error {
	query := `
		INSERT INTO rejection_requests (` + rejectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q(ctx).ExecContext(ctx, query,
		req.ID, req.BookingID, req.ProviderID, req.Reason, req.Status, req.AdminNotes,
		req.ResolvedBy, req.RequestedAt, req.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rejection request: %w", mapError(err))
	}
	return nil
}

func (r *rejectionRepository) Get(ctx context.Context, id uuid.UUID) (*model.RejectionRequest, error) {
	var req model.RejectionRequest
	query := `SELECT ` + rejectionColumns + ` FROM rejection_requests WHERE id = $1`
	if err := r.q(ctx).GetContext(ctx, &req, query, id); err != nil {
		return nil, mapError(err)
	}
	return &req, nil
}

func (r *rejectionRepository) ListByStatus(ctx context.Context, status model.RejectionStatus) ([]*model.RejectionRequest, error) {
	query := `
		SELECT ` + rejectionColumns + `
		FROM rejection_requests
		WHERE status = $1
		ORDER BY requested_at ASC
	`
	reqs := []*model.RejectionRequest{}
	if err := r.q(ctx).SelectContext(ctx, &reqs, query, status); err != nil {
		return nil, fmt.Errorf("failed to list rejection requests: %w", err)
	}
	return reqs, nil
}

func (r *rejectionRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*model.RejectionRequest, error) {
	query := `
		SELECT ` + rejectionColumns + `
		FROM rejection_requests
		WHERE booking_id = $1
		ORDER BY requested_at ASC
	`
	reqs := []*model.RejectionRequest{}
	if err := r.q(ctx).SelectContext(ctx, &reqs, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list rejection requests: %w", err)
	}
	return reqs, nil
}

func (r *rejectionRepository) Resolve(ctx context.Context, id uuid.UUID, res model.Resolution) (*model.RejectionRequest, error) {
	query := `
		UPDATE rejection_requests
		SET status = $2, admin_notes = NULLIF($3, ''), resolved_by = $4, resolved_at = $5
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + rejectionColumns

	var req model.RejectionRequest
	err := r.q(ctx).GetContext(ctx, &req, query, id, res.Status, res.AdminNotes, res.ResolvedBy, res.ResolvedAt)
	if err != nil {
		if err = mapError(err); errors.Is(err, repository.ErrNotFound) {
			return nil, r.conflictOrNotFound(ctx, "rejection_requests", id)
		}
		return nil, err
	}
	return &req, nil
}
