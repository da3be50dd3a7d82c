package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/gateway"
	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
	eventsvc "github.com/jwalitptl/homecare-api/internal/service/event"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	"github.com/jwalitptl/homecare-api/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
	"github.com/jwalitptl/homecare-api/pkg/event"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
)

type PaymentService interface {
	InitiatePayment(ctx context.Context, customerID uuid.UUID, req *model.InitiatePaymentRequest) (*model.PaymentIntent, error)
	ConfirmPayment(ctx context.Context, actor auth.Actor, intentID uuid.UUID) (*model.PaymentIntent, error)
	GetPayment(ctx context.Context, actor auth.Actor, intentID uuid.UUID) (*model.PaymentIntent, error)
	ListBookingPayments(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) ([]*model.PaymentIntent, error)
}

type Service struct {
	tx          repository.Transactor
	repo        repository.PaymentRepository
	bookingRepo repository.BookingRepository
	gateway     gateway.Client
	events      eventsvc.Emitter
	metrics     *metrics.Metrics
	returnURL   string
	now         func() time.Time
}

func NewService(
	tx repository.Transactor,
	repo repository.PaymentRepository,
	bookingRepo repository.BookingRepository,
	gw gateway.Client,
	events eventsvc.Emitter,
	m *metrics.Metrics,
	returnURL string,
) *Service {
	return &Service{
		tx:          tx,
		repo:        repo,
		bookingRepo: bookingRepo,
		gateway:     gw,
		events:      events,
		metrics:     m,
		returnURL:   returnURL,
		now:         time.Now,
	}
}

// InitiatePayment records how the customer pays for a booking. Only gateway
// payments that are due now reach the external provider, and nothing is
// stored unless it accepts the payment.
func (s *Service) InitiatePayment(ctx context.Context, customerID uuid.UUID, req *model.InitiatePaymentRequest) (*model.PaymentIntent, error) {
	switch req.Method {
	case model.PaymentMethodGateway, model.PaymentMethodCash:
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown payment method %q", req.Method), nil)
	}
	switch req.Timing {
	case model.PaymentTimingAdvance, model.PaymentTimingPostService:
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown payment timing %q", req.Timing), nil)
	}

	booking, err := s.bookingRepo.Get(ctx, req.BookingID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && booking.CustomerID != customerID) {
		return nil, apperrors.NotFound("booking", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking.Status == model.BookingStatusCancelled {
		return nil, apperrors.BadRequest("cannot pay for a cancelled booking", nil)
	}
	if booking.PaymentStatus == model.PaymentStatusPaid {
		return nil, apperrors.DuplicateRequest("booking is already paid")
	}
	paid, err := s.settledAmount(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	outstanding := fromCents(toCents(booking.TotalAmount) - paid)
	if req.Amount <= 0 || toCents(req.Amount) > toCents(outstanding) {
		return nil, apperrors.BadRequest(fmt.Sprintf("amount must be greater than 0 and at most %.2f", outstanding), nil).
			WithDetail("total_amount", booking.TotalAmount).
			WithDetail("outstanding_amount", outstanding)
	}

	intent := &model.PaymentIntent{
		Base:       model.NewBase(s.now().UTC()),
		BookingID:  booking.ID,
		CustomerID: customerID,
		Amount:     req.Amount,
		Method:     req.Method,
		Timing:     req.Timing,
	}

	switch {
	case req.Method == model.PaymentMethodCash:
		intent.Status = model.PaymentIntentCollectOnDelivery
	case req.Timing == model.PaymentTimingPostService && booking.Status != model.BookingStatusCompleted:
		intent.Status = model.PaymentIntentDeferred
	default:
		// No lock or transaction is held during the external call.
		res, err := s.gateway.Initiate(ctx, gateway.InitiateRequest{
			Reference: intent.ID.String(),
			Amount:    intent.Amount,
			ReturnURL: s.returnURL,
			Timing:    string(intent.Timing),
		})
		if err != nil {
			s.observe(intent, "failed")
			return nil, apperrors.PaymentInitiationFailed(gatewayReason(err), err)
		}
		intent.Status = model.PaymentIntentAwaitingConfirmation
		intent.GatewayReference = &res.Reference
		if res.RedirectURL != "" {
			intent.RedirectURL = &res.RedirectURL
		}
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, intent); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.PaymentInitiated, intent.ID, paymentChanged(intent))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store payment intent: %w", err)
	}

	s.observe(intent, "ok")
	return intent, nil
}

func (s *Service) observe(intent *model.PaymentIntent, result string) {
	s.metrics.PaymentInitiations.WithLabelValues(string(intent.Method), string(intent.Timing), result).Inc()
}

func gatewayReason(err error) string {
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return "payment gateway is temporarily unavailable"
	case errors.Is(err, gateway.ErrNotConfigured):
		return "online payment is not available"
	case errors.Is(err, context.DeadlineExceeded):
		return "payment gateway timed out"
	}
	return fmt.Sprintf("payment gateway rejected the payment: %v", err)
}

func (s *Service) GetPayment(ctx context.Context, actor auth.Actor, intentID uuid.UUID) (*model.PaymentIntent, error) {
	intent, err := s.repo.Get(ctx, intentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("payment", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if !actor.Is(auth.RoleAdmin) && intent.CustomerID != actor.ID {
		return nil, apperrors.NotFound("payment", nil)
	}
	return intent, nil
}

func (s *Service) ListBookingPayments(ctx context.Context, actor auth.Actor, bookingID uuid.UUID) ([]*model.PaymentIntent, error) {
	booking, err := s.bookingRepo.Get(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !actor.Is(auth.RoleAdmin) && booking.CustomerID != actor.ID) {
		return nil, apperrors.NotFound("booking", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	intents, err := s.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return intents, nil
}

// ConfirmPayment records a terminal payment outcome. Gateway intents ask the
// provider for their status; cash collection is confirmed by an admin.
// Confirming a settled intent returns it unchanged.
func (s *Service) ConfirmPayment(ctx context.Context, actor auth.Actor, intentID uuid.UUID) (*model.PaymentIntent, error) {
	intent, err := s.GetPayment(ctx, actor, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status.Settled() {
		return intent, nil
	}

	var outcome model.PaymentIntentStatus
	switch intent.Status {
	case model.PaymentIntentCollectOnDelivery:
		if !actor.Is(auth.RoleAdmin) {
			return nil, apperrors.Forbidden("cash collection is confirmed by an admin")
		}
		outcome = model.PaymentIntentSucceeded
	case model.PaymentIntentDeferred:
		return nil, apperrors.BadRequest("payment is deferred until the service is completed", nil)
	case model.PaymentIntentAwaitingConfirmation:
		status, err := s.gateway.CheckStatus(ctx, *intent.GatewayReference)
		if err != nil {
			return nil, apperrors.PaymentInitiationFailed(gatewayReason(err), err)
		}
		switch status {
		case gateway.StatusSucceeded:
			outcome = model.PaymentIntentSucceeded
		case gateway.StatusFailed:
			outcome = model.PaymentIntentFailed
		default:
			return intent, nil
		}
	default:
		return intent, nil
	}

	var reason *string
	if outcome == model.PaymentIntentFailed {
		msg := "declined by payment gateway"
		reason = &msg
	}

	var updated *model.PaymentIntent
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := s.now().UTC()
		var err error
		updated, err = s.repo.UpdateStatus(ctx, intent.ID, outcome, reason, now)
		if err != nil {
			return err
		}
		if err := s.settleBooking(ctx, intent.BookingID, outcome, now); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.PaymentConfirmed, updated.ID, paymentChanged(updated))
	})
	if errors.Is(err, repository.ErrConflict) {
		// Settled concurrently.
		return s.GetPayment(ctx, actor, intentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment: %w", err)
	}
	return updated, nil
}

// settleBooking derives the booking payment status from its intents. The
// booking becomes PAID once succeeded intents cover the total, a failure only
// marks it FAILED while it is unpaid, and PAID is never replaced.
func (s *Service) settleBooking(ctx context.Context, bookingID uuid.UUID, outcome model.PaymentIntentStatus, at time.Time) error {
	booking, err := s.bookingRepo.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	paid, err := s.settledAmount(ctx, bookingID)
	if err != nil {
		return err
	}

	unpaid := []model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusFailed}
	switch {
	case paid >= toCents(booking.TotalAmount):
		_, err = s.bookingRepo.UpdatePaymentStatus(ctx, bookingID, unpaid, model.PaymentStatusPaid, at)
	case outcome == model.PaymentIntentFailed:
		_, err = s.bookingRepo.UpdatePaymentStatus(ctx, bookingID, unpaid, model.PaymentStatusFailed, at)
	default:
		return nil
	}
	if errors.Is(err, repository.ErrConflict) {
		// Already PAID or REFUNDED.
		return nil
	}
	return err
}

// settledAmount sums succeeded intents for the booking, in cents.
func (s *Service) settledAmount(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	intents, err := s.repo.ListByBooking(ctx, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to list payments: %w", err)
	}
	var total int64
	for _, p := range intents {
		if p.Status == model.PaymentIntentSucceeded {
			total += toCents(p.Amount)
		}
	}
	return total, nil
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

func paymentChanged(p *model.PaymentIntent) event.PaymentChanged {
	return event.PaymentChanged{
		IntentID:  p.ID,
		BookingID: p.BookingID,
		Method:    string(p.Method),
		Timing:    string(p.Timing),
		Status:    string(p.Status),
		Amount:    p.Amount,
	}
}
