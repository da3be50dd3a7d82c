package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

const paymentColumns = `id, booking_id, customer_id, amount, method, timing, status,
	gateway_reference, redirect_url, failure_reason, created_at, updated_at`

type paymentRepository struct {
	BaseRepository
}

func NewPaymentRepository(base BaseRepository) repository.PaymentRepository {
	return &paymentRepository{base}
}

func (r *paymentRepository) Create(ctx context.Context, p *model.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.q(ctx).ExecContext(ctx, query,
		p.ID, p.BookingID, p.CustomerID, p.Amount, p.Method, p.Timing, p.Status,
		p.GatewayReference, p.RedirectURL, p.FailureReason, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment intent: %w", mapError(err))
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error) {
	var p model.PaymentIntent
	if err := r.q(ctx).GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payment_intents WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (r *paymentRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*model.PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_intents WHERE booking_id = $1 ORDER BY created_at ASC`
	intents := []*model.PaymentIntent{}
	if err := r.q(ctx).SelectContext(ctx, &intents, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to list payment intents: %w", err)
	}
	return intents, nil
}

func (r *paymentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PaymentIntentStatus, failureReason *string, at time.Time) (*model.PaymentIntent, error) {
	query := `
		UPDATE payment_intents
		SET status = $2, failure_reason = $3, updated_at = $4
		WHERE id = $1 AND status NOT IN ('SUCCEEDED', 'FAILED')
		RETURNING ` + paymentColumns

	var p model.PaymentIntent
	if err := r.q(ctx).GetContext(ctx, &p, query, id, status, failureReason, at); err != nil {
		if err = mapError(err); errors.Is(err, repository.ErrNotFound) {
			return nil, r.conflictOrNotFound(ctx, "payment_intents", id)
		}
		return nil, err
	}
	return &p, nil
}
