package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

type catalogRepository struct {
	s *Store
}

func (r *catalogRepository) Create(ctx context.Context, service *model.Service) error {
	defer r.s.lockWrite(ctx)()

	if _, ok := r.s.data.services[service.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.data.services[service.ID] = *service
	return nil
}

func (r *catalogRepository) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	svc, ok := r.s.data.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &svc, nil
}

func (r *catalogRepository) List(ctx context.Context, activeOnly bool) ([]*model.Service, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*model.Service, 0, len(r.s.data.services))
	for _, svc := range r.s.data.services {
		svc := svc
		if activeOnly && !svc.Active {
			continue
		}
		out = append(out, &svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type providerRepository struct {
	s *Store
}

func (r *providerRepository) Create(ctx context.Context, provider *model.Provider) error {
	defer r.s.lockWrite(ctx)()

	if _, ok := r.s.data.providers[provider.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.data.providers[provider.ID] = *provider
	return nil
}

func (r *providerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.data.providers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *providerRepository) List(ctx context.Context, filter model.ProviderServiceFilter) ([]*model.Provider, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*model.Provider, 0)
	for _, p := range r.s.data.providers {
		p := p
		if filter.AvailableOnly && !p.Available {
			continue
		}
		if filter.ServiceID != nil {
			if _, ok := r.s.data.providerServices[relationKey{p.ID, *filter.ServiceID}]; !ok {
				continue
			}
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (r *providerRepository) SetAvailability(ctx context.Context, id uuid.UUID, available bool, at time.Time) (*model.Provider, error) {
	defer r.s.lockWrite(ctx)()

	p, ok := r.s.data.providers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.Available = available
	p.UpdatedAt = at
	r.s.data.providers[id] = p
	return &p, nil
}

type providerServiceRepository struct {
	s *Store
}

func (r *providerServiceRepository) ListServiceIDs(ctx context.Context, providerID uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]uuid.UUID, 0)
	for key := range r.s.data.providerServices {
		if key.providerID == providerID {
			out = append(out, key.serviceID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (r *providerServiceRepository) Exists(ctx context.Context, providerID, serviceID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, ok := r.s.data.providerServices[relationKey{providerID, serviceID}]
	return ok, nil
}

func (r *providerServiceRepository) Add(ctx context.Context, providerID, serviceID uuid.UUID, at time.Time) (bool, error) {
	defer r.s.lockWrite(ctx)()

	key := relationKey{providerID, serviceID}
	if _, ok := r.s.data.providerServices[key]; ok {
		return false, nil
	}
	r.s.data.providerServices[key] = at
	return true, nil
}

func (r *providerServiceRepository) Remove(ctx context.Context, providerID, serviceID uuid.UUID) (bool, error) {
	defer r.s.lockWrite(ctx)()

	key := relationKey{providerID, serviceID}
	if _, ok := r.s.data.providerServices[key]; !ok {
		return false, nil
	}
	delete(r.s.data.providerServices, key)
	return true, nil
}

type serviceRequestRepository struct {
	s *Store
}

func (r *serviceRequestRepository) Create(ctx context.Context, req *model.ServiceRequest) error {
	defer r.s.lockWrite(ctx)()

	for _, existing := range r.s.data.serviceRequests {
		if existing.ProviderID == req.ProviderID &&
			existing.ServiceID == req.ServiceID &&
			existing.Type == req.Type &&
			existing.Status == model.ServiceRequestPending {
			return repository.ErrDuplicate
		}
	}
	r.s.data.serviceRequests[req.ID] = *req
	return nil
}

func (r *serviceRequestRepository) Get(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	req, ok := r.s.data.serviceRequests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &req, nil
}

func (r *serviceRequestRepository) List(ctx context.Context, providerID *uuid.UUID, status model.ServiceRequestStatus) ([]*model.ServiceRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*model.ServiceRequest, 0)
	for _, req := range r.s.data.serviceRequests {
		req := req
		if providerID != nil && req.ProviderID != *providerID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, &req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *serviceRequestRepository) Resolve(ctx context.Context, id uuid.UUID, status model.ServiceRequestStatus, reason *string, by uuid.UUID, at time.Time) (*model.ServiceRequest, error) {
	defer r.s.lockWrite(ctx)()

	req, ok := r.s.data.serviceRequests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if req.Status != model.ServiceRequestPending {
		return nil, repository.ErrConflict
	}
	req.Status = status
	req.RejectionReason = reason
	req.ResolvedBy = ptr(by)
	req.ResolvedAt = ptr(at)
	req.UpdatedAt = at
	r.s.data.serviceRequests[id] = req
	return &req, nil
}
