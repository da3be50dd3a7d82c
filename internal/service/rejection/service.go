package rejection

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

type RejectionService interface {
	RequestRejection(ctx context.Context, providerID uuid.UUID, req *model.CreateRejectionRequest) (*model.RejectionRequest, error)
	ListRejections(ctx context.Context, status model.RejectionStatus, bookingID *uuid.UUID) ([]*model.RejectionRequest, error)
	ApproveRejection(ctx context.Context, adminID, requestID uuid.UUID, notes string) (*model.RejectionOutcome, error)
	DenyRejection(ctx context.Context, adminID, requestID uuid.UUID, notes string) (*model.RejectionOutcome, error)
	Resolve(ctx context.Context, adminID, requestID uuid.UUID, decision model.Decision, notes string) (*model.RejectionOutcome, error)
}

type Service struct {
	tx          repository.Transactor
	repo        repository.RejectionRepository
	bookingRepo repository.BookingRepository
	events      eventsvc.Emitter
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewService(
	tx repository.Transactor,
	repo repository.RejectionRepository,
	bookingRepo repository.BookingRepository,
	events eventsvc.Emitter,
	m *metrics.Metrics,
) *Service {
	return &Service{
		tx:          tx,
		repo:        repo,
		bookingRepo: bookingRepo,
		events:      events,
		metrics:     m,
		now:         time.Now,
	}
}

// RequestRejection files the assigned provider's request to be released from
// a booking that has not started yet.
func (s *Service) RequestRejection(ctx context.Context, providerID uuid.UUID, req *model.CreateRejectionRequest) (*model.RejectionRequest, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperrors.BadRequest("a rejection reason is required", nil)
	}

	booking, err := s.getBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !booking.AssignedTo(providerID) {
		return nil, apperrors.NotAssigned("booking is not assigned to this provider")
	}
	if !booking.Status.CanTransitionTo(model.BookingStatusPending) {
		return nil, apperrors.InvalidTransition("booking", string(booking.Status), string(model.BookingStatusPending))
	}

	request := &model.RejectionRequest{
		ID:          uuid.New(),
		BookingID:   booking.ID,
		ProviderID:  providerID,
		Reason:      reason,
		Status:      model.RejectionStatusPending,
		RequestedAt: s.now().UTC(),
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, request); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.RejectionRequested, request.ID, rejectionChanged(request))
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperrors.DuplicateRequest("a rejection request for this booking is already pending")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create rejection request: %w", err)
	}
	return request, nil
}

func (s *Service) getBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	booking, err := s.bookingRepo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("booking", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// ListRejections returns requests in status (PENDING when empty), oldest
// first, optionally limited to one booking.
func (s *Service) ListRejections(ctx context.Context, status model.RejectionStatus, bookingID *uuid.UUID) ([]*model.RejectionRequest, error) {
	if status == "" {
		status = model.RejectionStatusPending
	}
	switch status {
	case model.RejectionStatusPending, model.RejectionStatusApproved, model.RejectionStatusDenied:
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown rejection status %q", status), nil)
	}

	if bookingID == nil {
		requests, err := s.repo.ListByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("failed to list rejection requests: %w", err)
		}
		return requests, nil
	}

	all, err := s.repo.ListByBooking(ctx, *bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejection requests: %w", err)
	}
	requests := make([]*model.RejectionRequest, 0, len(all))
	for _, r := range all {
		if r.Status == status {
			requests = append(requests, r)
		}
	}
	return requests, nil
}

func (s *Service) ApproveRejection(ctx context.Context, adminID, requestID uuid.UUID, notes string) (*model.RejectionOutcome, error) {
	return s.Resolve(ctx, adminID, requestID, model.DecisionApprove, notes)
}

func (s *Service) DenyRejection(ctx context.Context, adminID, requestID uuid.UUID, notes string) (*model.RejectionOutcome, error) {
	return s.Resolve(ctx, adminID, requestID, model.DecisionDeny, notes)
}

// Resolve records the admin's decision. The first resolution wins; any later
// one fails with AlreadyResolved. Approval releases the provider and returns
// the booking to PENDING in the same transaction, provided the booking is
// still assigned to that provider and has not started. Notes are stored for
// audit and never affect the outcome.
func (s *Service) Resolve(ctx context.Context, adminID, requestID uuid.UUID, decision model.Decision, notes string) (*model.RejectionOutcome, error) {
	status, ok := map[model.Decision]model.RejectionStatus{
		model.DecisionApprove: model.RejectionStatusApproved,
		model.DecisionDeny:    model.RejectionStatusDenied,
	}[decision]
	if !ok {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown decision %q", decision), nil)
	}

	outcome := &model.RejectionOutcome{}
	released := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.now().UTC()
		request, err := s.repo.Resolve(ctx, requestID, model.Resolution{
			Status:     status,
			AdminNotes: strings.TrimSpace(notes),
			ResolvedBy: adminID,
			ResolvedAt: now,
		})
		if err != nil {
			return err
		}
		outcome.Request = request

		eventType := event.RejectionDenied
		if decision == model.DecisionApprove {
			eventType = event.RejectionApproved
			booking, err := s.bookingRepo.ReleaseProvider(ctx, request.BookingID, request.ProviderID,
				model.TransitionSources(model.BookingStatusPending), now)
			switch {
			case err == nil:
				outcome.Booking = booking
				released = true
			case errors.Is(err, repository.ErrConflict):
				// Reassigned, started or closed since the request was filed.
			default:
				return err
			}
		}
		if outcome.Booking == nil {
			if outcome.Booking, err = s.bookingRepo.Get(ctx, request.BookingID); err != nil {
				return err
			}
		}
		return s.events.Emit(ctx, eventType, request.ID, rejectionChanged(request))
	})
	if err != nil {
		return nil, s.resolveError(ctx, requestID, err)
	}

	s.metrics.RejectionDecisions.WithLabelValues(string(decision)).Inc()
	if released {
		s.metrics.BookingTransitions.WithLabelValues(string(model.BookingStatusPending)).Inc()
	}
	return outcome, nil
}

func (s *Service) resolveError(ctx context.Context, requestID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("rejection request", err)
	case errors.Is(err, repository.ErrConflict):
		current, getErr := s.repo.Get(ctx, requestID)
		if getErr != nil {
			return fmt.Errorf("failed to get rejection request: %w", getErr)
		}
		return apperrors.AlreadyResolved("rejection request", string(current.Status))
	}
	return fmt.Errorf("failed to resolve rejection request: %w", err)
}

func rejectionChanged(r *model.RejectionRequest) event.RejectionChanged {
	data := event.RejectionChanged{
		RequestID:  r.ID,
		BookingID:  r.BookingID,
		ProviderID: r.ProviderID,
		Status:     string(r.Status),
		Reason:     r.Reason,
	}
	if r.AdminNotes != nil {
		data.AdminNotes = *r.AdminNotes
	}
	return data
}
