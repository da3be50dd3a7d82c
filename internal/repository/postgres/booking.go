package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
	"github.com/jwalitptl/homecare-api/pkg/security"
)

const bookingColumns = `id, customer_id, service_id, patient_id, provider_id, scheduled_at,
	duration_minutes, total_amount, special_instructions, status, payment_status,
	cancellation_reason, cancelled_by, created_at, updated_at`

// bookingRow carries the encrypted instructions column.
type bookingRow struct {
	model.Booking
	Instructions []byte `db:"special_instructions"`
}

type bookingRepository struct {
	BaseRepository
	enc security.Encryptor
}

func NewBookingRepository(base BaseRepository, enc security.Encryptor) repository.BookingRepository {
	return &bookingRepository{BaseRepository: base, enc: enc}
}

func statusArray(statuses []model.BookingStatus) interface{} {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func (r *bookingRepository) encrypt(text string) ([]byte, error) {
	if text == "" {
		return nil, nil
	}
	return r.enc.Encrypt([]byte(text))
}

func (r *bookingRepository) decode(row *bookingRow) (*model.Booking, error) {
	b := row.Booking
	if len(row.Instructions) > 0 {
		plain, err := r.enc.Decrypt(row.Instructions)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt special instructions: %w", err)
		}
		b.SpecialInstructions = string(plain)
	}
	return &b, nil
}

func (r *bookingRepository) decodeAll(rows []bookingRow) ([]*model.Booking, error) {
	out := make([]*model.Booking, 0, len(rows))
	for i := range rows {
		b, err := r.decode(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *model.Booking) error {
	instructions, err := r.encrypt(b.SpecialInstructions)
	if err != nil {
		return fmt.Errorf("failed to encrypt special instructions: %w", err)
	}

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.q(ctx).ExecContext(ctx, query,
		b.ID, b.CustomerID, b.ServiceID, b.PatientID, b.ProviderID, b.ScheduledAt,
		b.DurationMinutes, b.TotalAmount, instructions, b.Status, b.PaymentStatus,
		b.CancellationReason, b.CancelledBy, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", mapError(err))
	}
	return nil
}

func (r *bookingRepository) Get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var row bookingRow
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := r.q(ctx).GetContext(ctx, &row, query, id); err != nil {
		return nil, mapError(err)
	}
	return r.decode(&row)
}

func (r *bookingRepository) List(ctx context.Context, filters model.BookingFilters) ([]*model.Booking, error) {
	var (
		where []string
		args  []interface{}
	)
	if filters.CustomerID != nil {
		args = append(args, *filters.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filters.ProviderID != nil {
		args = append(args, *filters.ProviderID)
		where = append(where, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY scheduled_at ASC, created_at ASC`

	var rows []bookingRow
	if err := r.q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return r.decodeAll(rows)
}

func (r *bookingRepository) ListUnassigned(ctx context.Context) ([]*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status NOT IN ('CANCELLED', 'COMPLETED')
		ORDER BY scheduled_at ASC, created_at ASC
	`
	var rows []bookingRow
	if err := r.q(ctx).SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list unassigned bookings: %w", err)
	}
	return r.decodeAll(rows)
}

// updateReturning runs a conditional UPDATE ... RETURNING and maps a miss to
// ErrConflict or ErrNotFound.
func (r *bookingRepository) updateReturning(ctx context.Context, id uuid.UUID, query string, args ...interface{}) (*model.Booking, error) {
	var row bookingRow
	err := r.q(ctx).GetContext(ctx, &row, query+` RETURNING `+bookingColumns, args...)
	if err != nil {
		if err = mapError(err); errors.Is(err, repository.ErrNotFound) {
			return nil, r.conflictOrNotFound(ctx, "bookings", id)
		}
		return nil, err
	}
	return r.decode(&row)
}

func (r *bookingRepository) AssignProvider(ctx context.Context, id, providerID uuid.UUID, at time.Time) (*model.Booking, error) {
	query := `
		UPDATE bookings
		SET provider_id = $2, status = 'CONFIRMED', updated_at = $3
		WHERE id = $1 AND status = ANY($4)
	`
	return r.updateReturning(ctx, id, query, id, providerID, at,
		statusArray(model.TransitionSources(model.BookingStatusConfirmed)))
}

func (r *bookingRepository) Transition(ctx context.Context, id uuid.UUID, from []model.BookingStatus, to model.BookingStatus, at time.Time) (*model.Booking, error) {
	query := `
		UPDATE bookings
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
	`
	return r.updateReturning(ctx, id, query, id, to, at, statusArray(from))
}

func (r *bookingRepository) Cancel(ctx context.Context, id uuid.UUID, from []model.BookingStatus, reason string, by uuid.UUID, at time.Time) (*model.Booking, error) {
	query := `
		UPDATE bookings
		SET status = 'CANCELLED', cancellation_reason = NULLIF($2, ''), cancelled_by = $3, updated_at = $4
		WHERE id = $1 AND status = ANY($5)
	`
	return r.updateReturning(ctx, id, query, id, reason, by, at, statusArray(from))
}

func (r *bookingRepository) ReleaseProvider(ctx context.Context, id, providerID uuid.UUID, from []model.BookingStatus, at time.Time) (*model.Booking, error) {
	query := `
		UPDATE bookings
		SET provider_id = NULL, status = 'PENDING', updated_at = $3
		WHERE id = $1 AND provider_id = $2 AND status = ANY($4)
	`
	return r.updateReturning(ctx, id, query, id, providerID, at, statusArray(from))
}

func (r *bookingRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus, at time.Time) (*model.Booking, error) {
	query := `
		UPDATE bookings
		SET payment_status = $2, updated_at = $3
		WHERE id = $1 AND payment_status = ANY($4)
	`
	current := make([]string, len(from))
	for i, s := range from {
		current[i] = string(s)
	}
	return r.updateReturning(ctx, id, query, id, to, at, pq.Array(current))
}
