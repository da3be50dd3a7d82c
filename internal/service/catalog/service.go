package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
	eventsvc "github.com/jwalitptl/homecare-api/internal/service/event"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
	"github.com/jwalitptl/homecare-api/pkg/event"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
)

// Change sources recorded on provider_service.changed events.
const (
	SourceAdmin          = "admin"
	SourceServiceRequest = "service_request"
)

type CatalogService interface {
	GetService(ctx context.Context, id uuid.UUID) (*model.Service, error)
	ListServices(ctx context.Context) ([]*model.Service, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error)
	IsQualified(ctx context.Context, providerID, serviceID uuid.UUID) (bool, error)
	SetProviderService(ctx context.Context, providerID, serviceID uuid.UUID, present bool, source string) (bool, error)
	AdminSetServices(ctx context.Context, providerID uuid.UUID, serviceIDs []uuid.UUID) ([]model.ServiceChange, error)
	AddProviderService(ctx context.Context, providerID, serviceID uuid.UUID) (*model.ServiceChange, error)
	RemoveProviderService(ctx context.Context, providerID, serviceID uuid.UUID) (*model.ServiceChange, error)
	ListProviderServices(ctx context.Context, providerID uuid.UUID) ([]*model.Service, error)
	ListEligibleProviders(ctx context.Context, serviceID uuid.UUID) ([]*model.Provider, error)
	ListProviders(ctx context.Context, filter model.ProviderServiceFilter) ([]*model.Provider, error)
	SetAvailability(ctx context.Context, actor auth.Actor, providerID uuid.UUID, available bool) (*model.Provider, error)
	SubmitServiceRequest(ctx context.Context, providerID uuid.UUID, req *model.SubmitServiceRequest) (*model.ServiceRequest, error)
	ApproveServiceRequest(ctx context.Context, adminID, requestID uuid.UUID) (*model.ServiceRequest, error)
	RejectServiceRequest(ctx context.Context, adminID, requestID uuid.UUID, reason string) (*model.ServiceRequest, error)
	ListServiceRequests(ctx context.Context, actor auth.Actor, status model.ServiceRequestStatus) ([]*model.ServiceRequest, error)
}

type Service struct {
	tx           repository.Transactor
	catalogRepo  repository.CatalogRepository
	providerRepo repository.ProviderRepository
	relationRepo repository.ProviderServiceRepository
	requestRepo  repository.ServiceRequestRepository
	events       eventsvc.Emitter
	metrics      *metrics.Metrics
	lookups      *cache.Cache
	now          func() time.Time
}

func NewService(
	tx repository.Transactor,
	catalogRepo repository.CatalogRepository,
	providerRepo repository.ProviderRepository,
	relationRepo repository.ProviderServiceRepository,
	requestRepo repository.ServiceRequestRepository,
	events eventsvc.Emitter,
	m *metrics.Metrics,
	cacheTTL time.Duration,
) *Service {
	return &Service{
		tx:           tx,
		catalogRepo:  catalogRepo,
		providerRepo: providerRepo,
		relationRepo: relationRepo,
		requestRepo:  requestRepo,
		events:       events,
		metrics:      m,
		lookups:      cache.New(cacheTTL, 2*cacheTTL),
		now:          time.Now,
	}
}

func serviceCacheKey(id uuid.UUID) string {
	return "service:" + id.String()
}

// GetService looks a catalog entry up by id, served from the lookup cache
// when possible.
func (s *Service) GetService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	if cached, ok := s.lookups.Get(serviceCacheKey(id)); ok {
		svc := cached.(model.Service)
		return &svc, nil
	}

	svc, err := s.catalogRepo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("service", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	s.lookups.Set(serviceCacheKey(id), *svc, cache.DefaultExpiration)
	return svc, nil
}

func (s *Service) ListServices(ctx context.Context) ([]*model.Service, error) {
	services, err := s.catalogRepo.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	provider, err := s.providerRepo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("provider", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return provider, nil
}

// IsQualified reports whether the provider offers the service.
func (s *Service) IsQualified(ctx context.Context, providerID, serviceID uuid.UUID) (bool, error) {
	ok, err := s.relationRepo.Exists(ctx, providerID, serviceID)
	if err != nil {
		return false, fmt.Errorf("failed to check provider service: %w", err)
	}
	return ok, nil
}

// SetProviderService is the only writer of the provider-service relation.
// Admin toggles and approved service requests both go through it. It is
// idempotent and reports whether the relation changed.
func (s *Service) SetProviderService(ctx context.Context, providerID, serviceID uuid.UUID, present bool, source string) (bool, error) {
	var (
		changed bool
		err     error
	)
	if present {
		changed, err = s.relationRepo.Add(ctx, providerID, serviceID, s.now().UTC())
	} else {
		changed, err = s.relationRepo.Remove(ctx, providerID, serviceID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update provider service: %w", err)
	}
	if !changed {
		return false, nil
	}

	s.metrics.ProviderServiceChanges.WithLabelValues(string(changeAction(present)), source).Inc()
	err = s.events.Emit(ctx, event.ProviderServiceChanged, providerID, event.ProviderServiceChange{
		ProviderID: providerID,
		ServiceID:  serviceID,
		Present:    present,
		Source:     source,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func changeAction(present bool) model.ServiceChangeAction {
	if present {
		return model.ServiceChangeAdded
	}
	return model.ServiceChangeRemoved
}

// AdminSetServices makes the provider's service set equal to serviceIDs.
// Every addition and removal is applied in its own transaction; a failure on
// one id is reported in its ServiceChange and does not undo the others.
func (s *Service) AdminSetServices(ctx context.Context, providerID uuid.UUID, serviceIDs []uuid.UUID) ([]model.ServiceChange, error) {
	if _, err := s.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}

	current, err := s.relationRepo.ListServiceIDs(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider services: %w", err)
	}

	have := make(map[uuid.UUID]bool, len(current))
	for _, id := range current {
		have[id] = true
	}
	want := make(map[uuid.UUID]bool, len(serviceIDs))

	changes := make([]model.ServiceChange, 0)
	for _, id := range serviceIDs {
		if want[id] {
			continue
		}
		want[id] = true
		if !have[id] {
			changes = append(changes, s.applyChange(ctx, providerID, id, true))
		}
	}
	for _, id := range current {
		if !want[id] {
			changes = append(changes, s.applyChange(ctx, providerID, id, false))
		}
	}
	return changes, nil
}

func (s *Service) AddProviderService(ctx context.Context, providerID, serviceID uuid.UUID) (*model.ServiceChange, error) {
	return s.toggle(ctx, providerID, serviceID, true)
}

func (s *Service) RemoveProviderService(ctx context.Context, providerID, serviceID uuid.UUID) (*model.ServiceChange, error) {
	return s.toggle(ctx, providerID, serviceID, false)
}

func (s *Service) toggle(ctx context.Context, providerID, serviceID uuid.UUID, present bool) (*model.ServiceChange, error) {
	if _, err := s.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	change := model.ServiceChange{ServiceID: serviceID, Action: changeAction(present)}
	if err := s.applyOne(ctx, providerID, serviceID, present); err != nil {
		return nil, err
	}
	change.OK = true
	return &change, nil
}

func (s *Service) applyChange(ctx context.Context, providerID, serviceID uuid.UUID, present bool) model.ServiceChange {
	change := model.ServiceChange{ServiceID: serviceID, Action: changeAction(present), OK: true}
	if err := s.applyOne(ctx, providerID, serviceID, present); err != nil {
		change.OK = false
		change.ErrorKind = string(apperrors.KindOf(err))
		if appErr, ok := apperrors.As(err); ok {
			change.Error = appErr.Message
		} else {
			change.Error = "internal error"
		}
	}
	return change
}

func (s *Service) applyOne(ctx context.Context, providerID, serviceID uuid.UUID, present bool) error {
	if present {
		if _, err := s.GetService(ctx, serviceID); err != nil {
			return err
		}
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.SetProviderService(ctx, providerID, serviceID, present, SourceAdmin)
		return err
	})
}

// ListProviderServices returns the catalog entries the provider offers.
func (s *Service) ListProviderServices(ctx context.Context, providerID uuid.UUID) ([]*model.Service, error) {
	if _, err := s.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	ids, err := s.relationRepo.ListServiceIDs(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider services: %w", err)
	}

	services := make([]*model.Service, 0, len(ids))
	for _, id := range ids {
		svc, err := s.GetService(ctx, id)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, nil
}

// ListEligibleProviders returns the available providers qualified for the
// service, the candidates for assignment.
func (s *Service) ListEligibleProviders(ctx context.Context, serviceID uuid.UUID) ([]*model.Provider, error) {
	providers, err := s.providerRepo.List(ctx, model.ProviderServiceFilter{ServiceID: &serviceID, AvailableOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

func (s *Service) ListProviders(ctx context.Context, filter model.ProviderServiceFilter) ([]*model.Provider, error) {
	providers, err := s.providerRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return providers, nil
}

func (s *Service) SetAvailability(ctx context.Context, actor auth.Actor, providerID uuid.UUID, available bool) (*model.Provider, error) {
	if actor.Is(auth.RoleProvider) && actor.ID != providerID {
		return nil, apperrors.Forbidden("providers may only change their own availability")
	}
	provider, err := s.providerRepo.SetAvailability(ctx, providerID, available, s.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("provider", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set availability: %w", err)
	}
	return provider, nil
}

func (s *Service) SubmitServiceRequest(ctx context.Context, providerID uuid.UUID, req *model.SubmitServiceRequest) (*model.ServiceRequest, error) {
	if !req.Type.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown request type %q", req.Type), nil)
	}
	if _, err := s.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}
	if _, err := s.GetService(ctx, req.ServiceID); err != nil {
		return nil, err
	}

	request := &model.ServiceRequest{
		Base:       model.NewBase(s.now().UTC()),
		ProviderID: providerID,
		ServiceID:  req.ServiceID,
		Type:       req.Type,
		Notes:      req.Notes,
		Status:     model.ServiceRequestPending,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requestRepo.Create(ctx, request); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.ServiceRequestSubmitted, request.ID, serviceRequestChanged(request))
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperrors.DuplicatePending(fmt.Sprintf("a pending %s request for this service already exists", req.Type))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to submit service request: %w", err)
	}
	return request, nil
}

// ApproveServiceRequest resolves the request and applies its effect on the
// relation in one transaction.
func (s *Service) ApproveServiceRequest(ctx context.Context, adminID, requestID uuid.UUID) (*model.ServiceRequest, error) {
	var resolved *model.ServiceRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		resolved, err = s.requestRepo.Resolve(ctx, requestID, model.ServiceRequestApproved, nil, adminID, s.now().UTC())
		if err != nil {
			return err
		}
		if _, err := s.SetProviderService(ctx, resolved.ProviderID, resolved.ServiceID, resolved.Type.Present(), SourceServiceRequest); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.ServiceRequestApproved, resolved.ID, serviceRequestChanged(resolved))
	})
	if err != nil {
		return nil, s.resolveError(ctx, requestID, err)
	}
	s.metrics.ServiceRequestDecisions.WithLabelValues(string(resolved.Type), string(model.DecisionApprove)).Inc()
	return resolved, nil
}

func (s *Service) RejectServiceRequest(ctx context.Context, adminID, requestID uuid.UUID, reason string) (*model.ServiceRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.BadRequest("a rejection reason is required", nil)
	}

	var resolved *model.ServiceRequest
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		resolved, err = s.requestRepo.Resolve(ctx, requestID, model.ServiceRequestRejected, &reason, adminID, s.now().UTC())
		if err != nil {
			return err
		}
		return s.events.Emit(ctx, event.ServiceRequestRejected, resolved.ID, serviceRequestChanged(resolved))
	})
	if err != nil {
		return nil, s.resolveError(ctx, requestID, err)
	}
	s.metrics.ServiceRequestDecisions.WithLabelValues(string(resolved.Type), string(model.DecisionDeny)).Inc()
	return resolved, nil
}

func (s *Service) resolveError(ctx context.Context, requestID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("service request", err)
	case errors.Is(err, repository.ErrConflict):
		current, getErr := s.requestRepo.Get(ctx, requestID)
		if getErr != nil {
			return fmt.Errorf("failed to get service request: %w", getErr)
		}
		return apperrors.AlreadyResolved("service request", string(current.Status))
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return fmt.Errorf("failed to resolve service request: %w", err)
}

// ListServiceRequests returns requests with the given status (all when
// empty). Providers only see their own.
func (s *Service) ListServiceRequests(ctx context.Context, actor auth.Actor, status model.ServiceRequestStatus) ([]*model.ServiceRequest, error) {
	switch status {
	case "", model.ServiceRequestPending, model.ServiceRequestApproved, model.ServiceRequestRejected:
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown service request status %q", status), nil)
	}

	var providerID *uuid.UUID
	if !actor.Is(auth.RoleAdmin) {
		providerID = &actor.ID
	}
	requests, err := s.requestRepo.List(ctx, providerID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list service requests: %w", err)
	}
	return requests, nil
}

func serviceRequestChanged(r *model.ServiceRequest) event.ServiceRequestChanged {
	data := event.ServiceRequestChanged{
		RequestID:  r.ID,
		ProviderID: r.ProviderID,
		ServiceID:  r.ServiceID,
		Type:       string(r.Type),
		Status:     string(r.Status),
	}
	if r.RejectionReason != nil {
		data.RejectionReason = *r.RejectionReason
	}
	return data
}
