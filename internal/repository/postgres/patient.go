package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

const patientColumns = `id, customer_id, full_name, date_of_birth, gender, relationship, medical_notes, created_at, updated_at`

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, p *model.Patient) error {
	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q(ctx).ExecContext(ctx, query,
		p.ID, p.CustomerID, p.FullName, p.DateOfBirth, p.Gender, p.Relationship, p.MedicalNotes,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", mapError(err))
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var p model.Patient
	if err := r.q(ctx).GetContext(ctx, &p, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (r *patientRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE customer_id = $1 ORDER BY created_at ASC`
	patients := []*model.Patient{}
	if err := r.q(ctx).SelectContext(ctx, &patients, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}
