package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

type consentRepository struct {
	s *Store
}

func (r *consentRepository) Create(ctx context.Context, record *model.ConsentRecord) error {
	defer r.s.lockWrite(ctx)()

	if _, ok := r.s.data.consents[record.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.data.consents[record.ID] = *record
	return nil
}

func (r *consentRepository) Get(ctx context.Context, id uuid.UUID) (*model.ConsentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.data.consents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (r *consentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.ConsentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*model.ConsentRecord, 0)
	for _, rec := range r.s.data.consents {
		rec := rec
		if rec.UserID == userID {
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcceptedAt.Before(out[j].AcceptedAt) })
	return out, nil
}

func samePatient(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *consentRepository) FindActive(ctx context.Context, userID uuid.UUID, consentType model.ConsentType, version string, patientID *uuid.UUID) (*model.ConsentRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range r.s.data.consents {
		rec := rec
		if rec.UserID == userID && rec.Type == consentType && rec.Version == version &&
			!rec.Revoked() && samePatient(rec.PatientID, patientID) {
			return &rec, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *consentRepository) Revoke(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*model.ConsentRecord, error) {
	defer r.s.lockWrite(ctx)()

	rec, ok := r.s.data.consents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if rec.Revoked() {
		return nil, repository.ErrConflict
	}
	rec.RevokedAt = ptr(at)
	rec.RevocationReason = ptr(reason)
	r.s.data.consents[id] = rec
	return &rec, nil
}
