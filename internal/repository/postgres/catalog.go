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

const serviceColumns = `id, name, category, description, duration_minutes, price, active, created_at, updated_at`

type catalogRepository struct {
	BaseRepository
}

func NewCatalogRepository(base BaseRepository) repository.CatalogRepository {
	return &catalogRepository{base}
}

func (r *catalogRepository) Create(ctx context.Context, s *model.Service) error {
	query := `
		INSERT INTO services (` + serviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q(ctx).ExecContext(ctx, query,
		s.ID, s.Name, s.Category, s.Description, s.DurationMinutes, s.Price, s.Active, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", mapError(err))
	}
	return nil
}

func (r *catalogRepository) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	var s model.Service
	if err := r.q(ctx).GetContext(ctx, &s, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &s, nil
}

func (r *catalogRepository) List(ctx context.Context, activeOnly bool) ([]*model.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE ($1 = FALSE OR active) ORDER BY name ASC`
	services := []*model.Service{}
	if err := r.q(ctx).SelectContext(ctx, &services, query, activeOnly); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

const providerColumns = `p.id, p.full_name, p.email, p.phone, p.available, p.created_at, p.updated_at`

type providerRepository struct {
	BaseRepository
}

func NewProviderRepository(base BaseRepository) repository.ProviderRepository {
	return &providerRepository{base}
}

func (r *providerRepository) Create(ctx context.Context, p *model.Provider) error {
	query := `
		INSERT INTO providers (id, full_name, email, phone, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q(ctx).ExecContext(ctx, query,
		p.ID, p.FullName, p.Email, p.Phone, p.Available, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", mapError(err))
	}
	return nil
}

func (r *providerRepository) Get(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	var p model.Provider
	if err := r.q(ctx).GetContext(ctx, &p, `SELECT `+providerColumns+` FROM providers p WHERE p.id = $1`, id); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (r *providerRepository) List(ctx context.Context, filter model.ProviderServiceFilter) ([]*model.Provider, error) {
	query := `
		SELECT ` + providerColumns + `
		FROM providers p
		WHERE ($1 = FALSE OR p.available)
		AND ($2::uuid IS NULL OR EXISTS (
			SELECT 1 FROM provider_services ps
			WHERE ps.provider_id = p.id AND ps.service_id = $2::uuid
		))
		ORDER BY p.full_name ASC
	`
	providers := []*model.Provider{}
	if err := r.q(ctx).SelectContext(ctx, &providers, query, filter.AvailableOnly, filter.ServiceID); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

func (r *providerRepository) SetAvailability(ctx context.Context, id uuid.UUID, available bool, at time.Time) (*model.Provider, error) {
	query := `
		UPDATE providers p SET available = $2, updated_at = $3
		WHERE p.id = $1
		RETURNING ` + providerColumns
	var p model.Provider
	if err := r.q(ctx).GetContext(ctx, &p, query, id, available, at); err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

type providerServiceRepository struct {
	BaseRepository
}

func NewProviderServiceRepository(base BaseRepository) repository.ProviderServiceRepository {
	return &providerServiceRepository{base}
}

func (r *providerServiceRepository) ListServiceIDs(ctx context.Context, providerID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	query := `SELECT service_id FROM provider_services WHERE provider_id = $1 ORDER BY service_id`
	if err := r.q(ctx).SelectContext(ctx, &ids, query, providerID); err != nil {
		return nil, fmt.Errorf("failed to list provider services: %w", err)
	}
	return ids, nil
}

func (r *providerServiceRepository) Exists(ctx context.Context, providerID, serviceID uuid.UUID) (bool, error) {
	var ok bool
	query := `SELECT EXISTS(SELECT 1 FROM provider_services WHERE provider_id = $1 AND service_id = $2)`
	if err := r.q(ctx).GetContext(ctx, &ok, query, providerID, serviceID); err != nil {
		return false, fmt.Errorf("failed to check provider service: %w", err)
	}
	return ok, nil
}

func (r *providerServiceRepository) Add(ctx context.Context, providerID, serviceID uuid.UUID, at time.Time) (bool, error) {
	query := `
		INSERT INTO provider_services (provider_id, service_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id, service_id) DO NOTHING
	`
	res, err := r.q(ctx).ExecContext(ctx, query, providerID, serviceID, at)
	if err != nil {
		return false, fmt.Errorf("failed to add provider service: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *providerServiceRepository) Remove(ctx context.Context, providerID, serviceID uuid.UUID) (bool, error) {
	res, err := r.q(ctx).ExecContext(ctx,
		`DELETE FROM provider_services WHERE provider_id = $1 AND service_id = $2`, providerID, serviceID)
	if err != nil {
		return false, fmt.Errorf("failed to remove provider service: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const serviceRequestColumns = `id, provider_id, service_id, type, notes, status, rejection_reason,
	resolved_by, resolved_at, created_at, updated_at`

type serviceRequestRepository struct {
	BaseRepository
}

func NewServiceRequestRepository(base BaseRepository) repository.ServiceRequestRepository {
	return &serviceRequestRepository{base}
}

func (r *serviceRequestRepository) Create(ctx context.Context, req *model.ServiceRequest) error {
	query := `
		INSERT INTO service_requests (` + serviceRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.q(ctx).ExecContext(ctx, query,
		req.ID, req.ProviderID, req.ServiceID, req.Type, req.Notes, req.Status, req.RejectionReason,
		req.ResolvedBy, req.ResolvedAt, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create service request: %w", mapError(err))
	}
	return nil
}

func (r *serviceRequestRepository) Get(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	var req model.ServiceRequest
	query := `SELECT ` + serviceRequestColumns + ` FROM service_requests WHERE id = $1`
	if err := r.q(ctx).GetContext(ctx, &req, query, id); err != nil {
		return nil, mapError(err)
	}
	return &req, nil
}

func (r *serviceRequestRepository) List(ctx context.Context, providerID *uuid.UUID, status model.ServiceRequestStatus) ([]*model.ServiceRequest, error) {
	query := `
		SELECT ` + serviceRequestColumns + `
		FROM service_requests
		WHERE ($1::uuid IS NULL OR provider_id = $1::uuid)
		AND ($2 = '' OR status = $2)
		ORDER BY created_at ASC
	`
	reqs := []*model.ServiceRequest{}
	if err := r.q(ctx).SelectContext(ctx, &reqs, query, providerID, status); err != nil {
		return nil, fmt.Errorf("failed to list service requests: %w", err)
	}
	return reqs, nil
}

func (r *serviceRequestRepository) Resolve(ctx context.Context, id uuid.UUID, status model.ServiceRequestStatus, reason *string, by uuid.UUID, at time.Time) (*model.ServiceRequest, error) {
	query := `
		UPDATE service_requests
		SET status = $2, rejection_reason = $3, resolved_by = $4, resolved_at = $5, updated_at = $5
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + serviceRequestColumns

	var req model.ServiceRequest
	if err := r.q(ctx).GetContext(ctx, &req, query, id, status, reason, by, at); err != nil {
		if err = mapError(err); errors.Is(err, repository.ErrNotFound) {
			return nil, r.conflictOrNotFound(ctx, "service_requests", id)
		}
		return nil, err
	}
	return &req, nil
}
