package consent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
	eventsvc "github.com/jwalitptl/homecare-api/internal/service/event"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
	"github.com/jwalitptl/homecare-api/pkg/event"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
)

type ConsentService interface {
	GetRequiredConsents(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) ([]model.RequiredConsent, error)
	AcceptConsent(ctx context.Context, userID uuid.UUID, req *model.AcceptConsentRequest) (*model.ConsentRecord, error)
	HasValidConsent(ctx context.Context, userID uuid.UUID, consentType model.ConsentType, patientID *uuid.UUID) (bool, error)
	MissingConsents(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) ([]model.ConsentType, error)
	RequireConsents(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) error
	RevokeConsent(ctx context.Context, userID uuid.UUID, req *model.RevokeConsentRequest) (*model.ConsentRecord, error)
	ListConsents(ctx context.Context, userID uuid.UUID) ([]*model.ConsentRecord, error)
}

type Service struct {
	tx          repository.Transactor
	repo        repository.ConsentRepository
	patientRepo repository.PatientRepository
	events      eventsvc.Emitter
	metrics     *metrics.Metrics
	policies    []model.ConsentPolicy
	now         func() time.Time
}

func NewService(
	tx repository.Transactor,
	repo repository.ConsentRepository,
	patientRepo repository.PatientRepository,
	events eventsvc.Emitter,
	policies []model.ConsentPolicy,
	m *metrics.Metrics,
) *Service {
	return &Service{
		tx:          tx,
		repo:        repo,
		patientRepo: patientRepo,
		events:      events,
		metrics:     m,
		policies:    policies,
		now:         time.Now,
	}
}

// GetRequiredConsents returns every enforced policy annotated with whether
// the user holds a satisfying record for patientID.
func (s *Service) GetRequiredConsents(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) ([]model.RequiredConsent, error) {
	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}

	required := make([]model.RequiredConsent, 0, len(s.policies))
	for _, policy := range s.policies {
		rc := model.RequiredConsent{
			Type:    policy.Type,
			Version: policy.Version,
			Title:   policy.Title,
		}
		if rec := satisfying(records, policy, patientID); rec != nil {
			rc.Satisfied = true
			rc.RecordID = &rec.ID
		}
		required = append(required, rc)
	}
	return required, nil
}

// satisfying returns the unrevoked record for the policy's current version
// that covers patientID.
func satisfying(records []*model.ConsentRecord, policy model.ConsentPolicy, patientID *uuid.UUID) *model.ConsentRecord {
	for _, rec := range records {
		if rec.Type != policy.Type || rec.Version != policy.Version {
			continue
		}
		if !rec.Accepted || rec.Revoked() || !rec.Covers(patientID) {
			continue
		}
		return rec
	}
	return nil
}

func (s *Service) AcceptConsent(ctx context.Context, userID uuid.UUID, req *model.AcceptConsentRequest) (*model.ConsentRecord, error) {
	if !req.Type.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown consent type %q", req.Type), nil)
	}
	version := strings.TrimSpace(req.Version)
	if version == "" {
		return nil, apperrors.BadRequest("consent version is required", nil)
	}
	if req.PatientID != nil {
		if err := s.checkPatient(ctx, userID, *req.PatientID); err != nil {
			return nil, err
		}
	}

	var record *model.ConsentRecord
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindActive(ctx, userID, req.Type, version, req.PatientID)
		if err == nil {
			record = existing
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to look up consent: %w", err)
		}

		record = &model.ConsentRecord{
			ID:         uuid.New(),
			UserID:     userID,
			PatientID:  req.PatientID,
			Type:       req.Type,
			Version:    version,
			Accepted:   true,
			AcceptedAt: s.now().UTC(),
		}
		if err := s.repo.Create(ctx, record); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.ConsentAccepted, record.ID, event.ConsentChanged{
			RecordID:  record.ID,
			UserID:    userID,
			PatientID: req.PatientID,
			Type:      string(req.Type),
			Version:   version,
		})
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a race with an identical acceptance.
		winner, err := s.repo.FindActive(ctx, userID, req.Type, version, req.PatientID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.DuplicateRequest("consent was changed concurrently, retry the request")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up consent: %w", err)
		}
		return winner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to accept consent: %w", err)
	}
	return record, nil
}

func (s *Service) checkPatient(ctx context.Context, userID, patientID uuid.UUID) error {
	patient, err := s.patientRepo.Get(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("patient", err)
	}
	if err != nil {
		return fmt.Errorf("failed to get patient: %w", err)
	}
	if patient.CustomerID != userID {
		return apperrors.Forbidden("patient belongs to another customer")
	}
	return nil
}

// HasValidConsent reports whether an unrevoked acceptance of the current
// version of consentType covers patientID.
func (s *Service) HasValidConsent(ctx context.Context, userID uuid.UUID, consentType model.ConsentType, patientID *uuid.UUID) (bool, error) {
	policy, ok := s.policy(consentType)
	if !ok {
		return false, nil
	}
	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to list consents: %w", err)
	}
	return satisfying(records, policy, patientID) != nil, nil
}

func (s *Service) policy(consentType model.ConsentType) (model.ConsentPolicy, bool) {
	for _, p := range s.policies {
		if p.Type == consentType {
			return p, true
		}
	}
	return model.ConsentPolicy{}, false
}

// MissingConsents lists every enforced type the user has not satisfied.
func (s *Service) MissingConsents(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) ([]model.ConsentType, error) {
	required, err := s.GetRequiredConsents(ctx, userID, patientID)
	if err != nil {
		return nil, err
	}
	missing := make([]model.ConsentType, 0)
	for _, rc := range required {
		if !rc.Satisfied {
			missing = append(missing, rc.Type)
		}
	}
	return missing, nil
}

// RequireConsents is the gate for patient and booking creation. It fails with
// ConsentRequired naming every unsatisfied type.
func (s *Service) RequireConsents(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) error {
	missing, err := s.MissingConsents(ctx, userID, patientID)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	s.metrics.ConsentGateFailures.Inc()
	names := make([]string, len(missing))
	for i, t := range missing {
		names[i] = string(t)
	}
	return apperrors.ConsentRequired(names)
}

func (s *Service) RevokeConsent(ctx context.Context, userID uuid.UUID, req *model.RevokeConsentRequest) (*model.ConsentRecord, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperrors.BadRequest("revocation reason is required", nil)
	}

	existing, err := s.repo.Get(ctx, req.ConsentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("consent", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	if existing.UserID != userID {
		return nil, apperrors.Forbidden("consent belongs to another user")
	}

	var record *model.ConsentRecord
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		record, err = s.repo.Revoke(ctx, req.ConsentID, reason, s.now().UTC())
		if err != nil {
			return err
		}
		return s.events.Emit(ctx, event.ConsentRevoked, record.ID, event.ConsentChanged{
			RecordID:  record.ID,
			UserID:    userID,
			PatientID: record.PatientID,
			Type:      string(record.Type),
			Version:   record.Version,
		})
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil, apperrors.AlreadyRevoked("consent is already revoked")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to revoke consent: %w", err)
	}
	return record, nil
}

func (s *Service) ListConsents(ctx context.Context, userID uuid.UUID) ([]*model.ConsentRecord, error) {
	records, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	return records, nil
}
