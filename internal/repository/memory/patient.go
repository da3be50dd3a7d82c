package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

type patientRepository struct {
	s *Store
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	defer r.s.lockWrite(ctx)()

	if _, ok := r.s.data.patients[patient.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.data.patients[patient.ID] = *patient
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.data.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *patientRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*model.Patient, 0)
	for _, p := range r.s.data.patients {
		p := p
		if p.CustomerID == customerID {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
