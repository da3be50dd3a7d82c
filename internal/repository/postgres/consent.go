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

const consentColumns = `id, user_id, patient_id, type, version, accepted, accepted_at, revoked_at, revocation_reason`

type consentRepository struct {
	BaseRepository
}

func NewConsentRepository(base BaseRepository) repository.ConsentRepository {
	return &consentRepository{base}
}

func (r *consentRepository) Create(ctx context.Context, rec *model.ConsentRecord) error {
	query := `
		INSERT INTO consent_records (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q(ctx).ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.PatientID, rec.Type, rec.Version, rec.Accepted, rec.AcceptedAt,
		rec.RevokedAt, rec.RevocationReason)
	if err != nil {
		return fmt.Errorf("failed to create consent record: %w", mapError(err))
	}
	return nil
}

func (r *consentRepository) Get(ctx context.Context, id uuid.UUID) (*model.ConsentRecord, error) {
	var rec model.ConsentRecord
	query := `SELECT ` + consentColumns + ` FROM consent_records WHERE id = $1`
	if err := r.q(ctx).GetContext(ctx, &rec, query, id); err != nil {
		return nil, mapError(err)
	}
	return &rec, nil
}

func (r *consentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.ConsentRecord, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consent_records
		WHERE user_id = $1
		ORDER BY accepted_at ASC
	`
	recs := []*model.ConsentRecord{}
	if err := r.q(ctx).SelectContext(ctx, &recs, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list consent records: %w", err)
	}
	return recs, nil
}

func (r *consentRepository) FindActive(ctx context.Context, userID uuid.UUID, consentType model.ConsentType, version string, patientID *uuid.UUID) (*model.ConsentRecord, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consent_records
		WHERE user_id = $1 AND type = $2 AND version = $3
		AND patient_id IS NOT DISTINCT FROM $4::uuid
		AND revoked_at IS NULL
		LIMIT 1
	`
	var rec model.ConsentRecord
	if err := r.q(ctx).GetContext(ctx, &rec, query, userID, consentType, version, patientID); err != nil {
		return nil, mapError(err)
	}
	return &rec, nil
}

func (r *consentRepository) Revoke(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*model.ConsentRecord, error) {
	query := `
		UPDATE consent_records
		SET revoked_at = $2, revocation_reason = $3
		WHERE id = $1 AND revoked_at IS NULL
		RETURNING ` + consentColumns

	var rec model.ConsentRecord
	if err := r.q(ctx).GetContext(ctx, &rec, query, id, at, reason); err != nil {
		if err = mapError(err); errors.Is(err, repository.ErrNotFound) {
			return nil, r.conflictOrNotFound(ctx, "consent_records", id)
		}
		return nil, err
	}
	return &rec, nil
}
