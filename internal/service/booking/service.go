package booking

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
	"github.com/jwalitptl/homecare-api/pkg/auth"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
	"github.com/jwalitptl/homecare-api/pkg/event"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
)

const scheduleLayout = "2006-01-02 15:04"

// Catalog is the part of the service catalog bookings depend on.
type Catalog interface {
	GetService(ctx context.Context, id uuid.UUID) (*model.Service, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error)
	IsQualified(ctx context.Context, providerID, serviceID uuid.UUID) (bool, error)
}

// ConsentGate blocks creation until the customer holds every required consent.
type ConsentGate interface {
	RequireConsents(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) error
}

type BookingService interface {
	CreateBooking(ctx context.Context, customerID uuid.UUID, req *model.CreateBookingRequest) (*model.Booking, error)
	ListUnassignedWork(ctx context.Context) ([]*model.Booking, error)
	ListBookings(ctx context.Context, actor auth.Actor, filters model.BookingFilters) ([]*model.Booking, error)
	GetBooking(ctx context.Context, actor auth.Actor, id uuid.UUID) (*model.Booking, error)
	AssignProvider(ctx context.Context, bookingID, providerID uuid.UUID) (*model.Booking, error)
	CancelBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID, reason string) (*model.Booking, error)
	StartBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) (*model.Booking, error)
	CompleteBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) (*model.Booking, error)
}

type Service struct {
	tx          repository.Transactor
	repo        repository.BookingRepository
	patientRepo repository.PatientRepository
	catalog     Catalog
	consent     ConsentGate
	events      eventsvc.Emitter
	metrics     *metrics.Metrics
	location    *time.Location
	now         func() time.Time
}

func NewService(
	tx repository.Transactor,
	repo repository.BookingRepository,
	patientRepo repository.PatientRepository,
	catalog Catalog,
	consent ConsentGate,
	events eventsvc.Emitter,
	m *metrics.Metrics,
	location *time.Location,
) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		tx:          tx,
		repo:        repo,
		patientRepo: patientRepo,
		catalog:     catalog,
		consent:     consent,
		events:      events,
		metrics:     m,
		location:    location,
		now:         time.Now,
	}
}

func (s *Service) CreateBooking(ctx context.Context, customerID uuid.UUID, req *model.CreateBookingRequest) (*model.Booking, error) {
	scheduledAt, err := time.ParseInLocation(scheduleLayout, req.ScheduledDate+" "+req.ScheduledTime, s.location)
	if err != nil {
		return nil, apperrors.InvalidSchedule("scheduled date must be YYYY-MM-DD and time HH:MM")
	}
	if !scheduledAt.After(s.now()) {
		return nil, apperrors.InvalidSchedule("scheduled time is in the past")
	}
	if req.DurationMinutes != nil && *req.DurationMinutes <= 0 {
		return nil, apperrors.InvalidSchedule("duration must be positive")
	}

	service, err := s.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !service.Active {
		return nil, apperrors.BadRequest("service is not currently offered", nil)
	}

	duration := service.DurationMinutes
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	if duration <= 0 {
		return nil, apperrors.InvalidSchedule("duration must be positive")
	}

	amount := service.Price
	if req.TotalAmount != nil {
		amount = *req.TotalAmount
	}
	if amount < 0 {
		return nil, apperrors.BadRequest("total amount must not be negative", nil)
	}

	if req.PatientID != nil {
		patient, err := s.patientRepo.Get(ctx, *req.PatientID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get patient: %w", err)
		}
		if patient.CustomerID != customerID {
			return nil, apperrors.Forbidden("patient belongs to another customer")
		}
	}

	if err := s.consent.RequireConsents(ctx, customerID, req.PatientID); err != nil {
		return nil, err
	}

	booking := &model.Booking{
		Base:                model.NewBase(s.now().UTC()),
		CustomerID:          customerID,
		ServiceID:           service.ID,
		PatientID:           req.PatientID,
		ScheduledAt:         scheduledAt.UTC(),
		DurationMinutes:     duration,
		TotalAmount:         amount,
		SpecialInstructions: strings.TrimSpace(req.SpecialInstructions),
		Status:              model.BookingStatusPending,
		PaymentStatus:       model.PaymentStatusPending,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, booking); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.BookingCreated, booking.ID, bookingChanged(booking, nil))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.metrics.BookingTransitions.WithLabelValues(string(model.BookingStatusPending)).Inc()
	return booking, nil
}

// ListUnassignedWork is the admin queue: every booking that is not in a
// terminal state, earliest scheduled first, provider set or not.
func (s *Service) ListUnassignedWork(ctx context.Context) ([]*model.Booking, error) {
	bookings, err := s.repo.ListUnassigned(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned bookings: %w", err)
	}
	return bookings, nil
}

func (s *Service) ListBookings(ctx context.Context, actor auth.Actor, filters model.BookingFilters) ([]*model.Booking, error) {
	switch actor.Role {
	case auth.RoleCustomer:
		filters.CustomerID = &actor.ID
	case auth.RoleProvider:
		filters.ProviderID = &actor.ID
	}
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown booking status %q", filters.Status), nil)
	}

	bookings, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// GetBooking returns the booking if the actor may see it: its customer, its
// assigned provider or any admin.
func (s *Service) GetBooking(ctx context.Context, actor auth.Actor, id uuid.UUID) (*model.Booking, error) {
	booking, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.Is(auth.RoleAdmin):
	case actor.Is(auth.RoleCustomer) && booking.CustomerID == actor.ID:
	case actor.Is(auth.RoleProvider) && booking.AssignedTo(actor.ID):
	default:
		return nil, apperrors.NotFound("booking", nil)
	}
	return booking, nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	booking, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("booking", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// AssignProvider sets the provider and confirms the booking. Assigning the
// same provider again is a no-op; a different provider replaces the current
// one and the booking stays CONFIRMED.
func (s *Service) AssignProvider(ctx context.Context, bookingID, providerID uuid.UUID) (*model.Booking, error) {
	booking, err := s.get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(model.BookingStatusConfirmed) {
		return nil, apperrors.InvalidTransition("booking", string(booking.Status), string(model.BookingStatusConfirmed))
	}

	provider, err := s.catalog.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	qualified, err := s.catalog.IsQualified(ctx, providerID, booking.ServiceID)
	if err != nil {
		return nil, err
	}
	if !qualified {
		return nil, apperrors.ProviderNotQualified(providerID, booking.ServiceID)
	}
	if !provider.Available {
		return nil, apperrors.ProviderUnavailable(providerID)
	}

	if booking.Status == model.BookingStatusConfirmed && booking.AssignedTo(providerID) {
		return booking, nil
	}

	previous := booking.ProviderID
	var updated *model.Booking
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.repo.AssignProvider(ctx, bookingID, providerID, s.now().UTC())
		if err != nil {
			return err
		}
		return s.events.Emit(ctx, event.BookingAssigned, updated.ID, bookingChanged(updated, previous))
	})
	if err != nil {
		return nil, s.transitionError(ctx, bookingID, model.BookingStatusConfirmed, err)
	}

	s.metrics.BookingTransitions.WithLabelValues(string(model.BookingStatusConfirmed)).Inc()
	return updated, nil
}

// CancelBooking is open to the booking's customer and to admins, from
// PENDING or CONFIRMED.
func (s *Service) CancelBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID, reason string) (*model.Booking, error) {
	if actor.Is(auth.RoleProvider) {
		return nil, apperrors.Forbidden("providers cannot cancel bookings; request a rejection instead")
	}
	booking, err := s.GetBooking(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}

	to := model.BookingStatusCancelled
	if !booking.Status.CanTransitionTo(to) {
		return nil, apperrors.InvalidTransition("booking", string(booking.Status), string(to))
	}

	return s.transition(ctx, booking, to, event.BookingCancelled, func(ctx context.Context) (*model.Booking, error) {
		return s.repo.Cancel(ctx, bookingID, model.TransitionSources(to), strings.TrimSpace(reason), actor.ID, s.now().UTC())
	})
}

// StartBooking marks delivery as begun. Only the assigned provider may start.
func (s *Service) StartBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) (*model.Booking, error) {
	booking, err := s.get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.AssignedTo(actor.ID) {
		return nil, apperrors.NotAssigned("booking is not assigned to this provider")
	}

	to := model.BookingStatusInProgress
	if !booking.Status.CanTransitionTo(to) {
		return nil, apperrors.InvalidTransition("booking", string(booking.Status), string(to))
	}

	return s.transition(ctx, booking, to, event.BookingStarted, func(ctx context.Context) (*model.Booking, error) {
		return s.repo.Transition(ctx, bookingID, model.TransitionSources(to), to, s.now().UTC())
	})
}

// CompleteBooking is open to the assigned provider and to admins.
func (s *Service) CompleteBooking(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) (*model.Booking, error) {
	booking, err := s.get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch {
	case actor.Is(auth.RoleAdmin):
	case actor.Is(auth.RoleProvider) && booking.AssignedTo(actor.ID):
	case actor.Is(auth.RoleProvider):
		return nil, apperrors.NotAssigned("booking is not assigned to this provider")
	default:
		return nil, apperrors.Forbidden("only the assigned provider or an admin can complete a booking")
	}

	to := model.BookingStatusCompleted
	if !booking.Status.CanTransitionTo(to) {
		return nil, apperrors.InvalidTransition("booking", string(booking.Status), string(to))
	}

	return s.transition(ctx, booking, to, event.BookingCompleted, func(ctx context.Context) (*model.Booking, error) {
		return s.repo.Transition(ctx, bookingID, model.TransitionSources(to), to, s.now().UTC())
	})
}

func (s *Service) transition(ctx context.Context, booking *model.Booking, to model.BookingStatus, eventType event.EventType, apply func(ctx context.Context) (*model.Booking, error)) (*model.Booking, error) {
	var updated *model.Booking
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = apply(ctx)
		if err != nil {
			return err
		}
		return s.events.Emit(ctx, eventType, updated.ID, bookingChanged(updated, nil))
	})
	if err != nil {
		return nil, s.transitionError(ctx, booking.ID, to, err)
	}

	s.metrics.BookingTransitions.WithLabelValues(string(to)).Inc()
	return updated, nil
}

// transitionError maps a failed conditional update. A conflict means another
// actor moved the booking first; the caller learns its current status.
func (s *Service) transitionError(ctx context.Context, bookingID uuid.UUID, to model.BookingStatus, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("booking", err)
	case errors.Is(err, repository.ErrConflict):
		current, getErr := s.get(ctx, bookingID)
		if getErr != nil {
			return getErr
		}
		return apperrors.InvalidTransition("booking", string(current.Status), string(to))
	}
	return fmt.Errorf("failed to update booking: %w", err)
}

func bookingChanged(b *model.Booking, previousProvider *uuid.UUID) event.BookingChanged {
	return event.BookingChanged{
		BookingID:          b.ID,
		CustomerID:         b.CustomerID,
		ServiceID:          b.ServiceID,
		ProviderID:         b.ProviderID,
		PreviousProviderID: previousProvider,
		Status:             string(b.Status),
		ScheduledAt:        b.ScheduledAt,
	}
}
