package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
)

const dateLayout = "2006-01-02"

// ConsentGate blocks creation until the customer holds every required consent.
type ConsentGate interface {
	RequireConsents(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) error
}

type PatientService interface {
	CreatePatient(ctx context.Context, customerID uuid.UUID, req *model.CreatePatientRequest) (*model.Patient, error)
	GetPatient(ctx context.Context, actor auth.Actor, id uuid.UUID) (*model.Patient, error)
	ListPatients(ctx context.Context, customerID uuid.UUID) ([]*model.Patient, error)
}

type Service struct {
	repo    repository.PatientRepository
	consent ConsentGate
	now     func() time.Time
}

func NewService(repo repository.PatientRepository, consent ConsentGate) *Service {
	return &Service{
		repo:    repo,
		consent: consent,
		now:     time.Now,
	}
}

func (s *Service) CreatePatient(ctx context.Context, customerID uuid.UUID, req *model.CreatePatientRequest) (*model.Patient, error) {
	patient, err := s.buildPatient(customerID, req)
	if err != nil {
		return nil, err
	}

	if err := s.consent.RequireConsents(ctx, customerID, nil); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	return patient, nil
}

func (s *Service) buildPatient(customerID uuid.UUID, req *model.CreatePatientRequest) (*model.Patient, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, apperrors.BadRequest("full name is required", nil)
	}

	patient := &model.Patient{
		Base:         model.NewBase(s.now().UTC()),
		CustomerID:   customerID,
		FullName:     name,
		Gender:       req.Gender,
		Relationship: strings.TrimSpace(req.Relationship),
		MedicalNotes: req.MedicalNotes,
	}
	if req.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, req.DateOfBirth)
		if err != nil {
			return nil, apperrors.BadRequest("date of birth must be YYYY-MM-DD", err)
		}
		if dob.After(s.now()) {
			return nil, apperrors.BadRequest("date of birth is in the future", nil)
		}
		patient.DateOfBirth = &dob
	}
	return patient, nil
}

// GetPatient is the registry's existence check. Customers only see their own
// patients; admins see all.
func (s *Service) GetPatient(ctx context.Context, actor auth.Actor, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	if !actor.Is(auth.RoleAdmin) && patient.CustomerID != actor.ID {
		return nil, apperrors.NotFound("patient", nil)
	}
	return patient, nil
}

func (s *Service) ListPatients(ctx context.Context, customerID uuid.UUID) ([]*model.Patient, error) {
	patients, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}
