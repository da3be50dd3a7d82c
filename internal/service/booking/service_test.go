package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/service/servicetest"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
	"github.com/jwalitptl/homecare-api/pkg/event"
)

func TestCreateBooking_ConsentGate(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	customer := servicetest.Customer()
	nursing := env.Service(t, "Nursing", 80)
	req := servicetest.BookingRequest(nursing, 3)

	_, err := env.Consent.AcceptConsent(ctx, customer.ID, &model.AcceptConsentRequest{Type: model.ConsentTerms, Version: "1.0"})
	require.NoError(t, err)

	_, err = env.Bookings.CreateBooking(ctx, customer.ID, req)
	require.True(t, apperrors.Is(err, apperrors.KindConsentRequired))
	appErr, _ := apperrors.As(err)
	assert.Equal(t, []string{"privacy", "medical-data-sharing", "compliance"}, appErr.Details["missing"])

	missing, err := env.Consent.MissingConsents(ctx, customer.ID, nil)
	require.NoError(t, err)
	for _, ct := range missing {
		_, err := env.Consent.AcceptConsent(ctx, customer.ID, &model.AcceptConsentRequest{Type: ct, Version: "1.0"})
		require.NoError(t, err)
	}

	booking, err := env.Bookings.CreateBooking(ctx, customer.ID, req)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, booking.Status)
	assert.Equal(t, model.PaymentStatusPending, booking.PaymentStatus)
	assert.Nil(t, booking.ProviderID)
	assert.Equal(t, 80.0, booking.TotalAmount)
	assert.Equal(t, 60, booking.DurationMinutes)
	assert.Contains(t, env.EventTypes(t), string(event.BookingCreated))
}

func TestCreateBooking_InvalidSchedule(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	customer := servicetest.Customer()
	env.AcceptAll(t, customer.ID)
	nursing := env.Service(t, "Nursing", 80)

	past := servicetest.BookingRequest(nursing, -1)
	_, err := env.Bookings.CreateBooking(ctx, customer.ID, past)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidSchedule))

	zero := 0
	req := servicetest.BookingRequest(nursing, 1)
	req.DurationMinutes = &zero
	_, err = env.Bookings.CreateBooking(ctx, customer.ID, req)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidSchedule))

	req = servicetest.BookingRequest(nursing, 1)
	req.ScheduledTime = "25:99"
	_, err = env.Bookings.CreateBooking(ctx, customer.ID, req)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidSchedule))
}

func TestCreateBooking_Validation(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	customer := servicetest.Customer()
	env.AcceptAll(t, customer.ID)
	nursing := env.Service(t, "Nursing", 80)

	req := servicetest.BookingRequest(nursing, 1)
	req.ServiceID = uuid.New()
	_, err := env.Bookings.CreateBooking(ctx, customer.ID, req)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	negative := -5.0
	req = servicetest.BookingRequest(nursing, 1)
	req.TotalAmount = &negative
	_, err = env.Bookings.CreateBooking(ctx, customer.ID, req)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidRequest))

	otherPatient, err := env.Patients.CreatePatient(ctx, customer.ID, &model.CreatePatientRequest{FullName: "Kid", Relationship: "child"})
	require.NoError(t, err)
	stranger := servicetest.Customer()
	env.AcceptAll(t, stranger.ID)
	req = servicetest.BookingRequest(nursing, 1)
	req.PatientID = &otherPatient.ID
	_, err = env.Bookings.CreateBooking(ctx, stranger.ID, req)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	req.PatientID = &otherPatient.ID
	b, err := env.Bookings.CreateBooking(ctx, customer.ID, req)
	require.NoError(t, err)
	assert.Equal(t, otherPatient.ID, *b.PatientID)
}

func TestCreateBooking_UsesBookingTimeZone(t *testing.T) {
	env := servicetest.NewEnv(t)
	customer := servicetest.Customer()
	env.AcceptAll(t, customer.ID)
	nursing := env.Service(t, "Nursing", 80)

	req := servicetest.BookingRequest(nursing, 5)
	req.ScheduledTime = "08:30"
	b, err := env.Bookings.CreateBooking(context.Background(), customer.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 8, b.ScheduledAt.Hour())
	assert.Equal(t, 30, b.ScheduledAt.Minute())
	assert.Equal(t, time.UTC, b.ScheduledAt.Location())
}

func TestAssignProvider_ScenarioA(t *testing.T) {
	env := servicetest.NewEnv(t)
	nursing := env.Service(t, "Nursing", 80)
	provider := env.Provider(t, "florence", nursing)
	b := env.PendingBooking(t, servicetest.Customer(), nursing)

	assigned, err := env.Bookings.AssignProvider(context.Background(), b.ID, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, assigned.Status)
	require.NotNil(t, assigned.ProviderID)
	assert.Equal(t, provider.ID, *assigned.ProviderID)
	assert.Contains(t, env.EventTypes(t), string(event.BookingAssigned))
}

func TestAssignProvider_Preconditions(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	nursing := env.Service(t, "Nursing", 80)
	physio := env.Service(t, "Physiotherapy", 90)
	unqualified := env.Provider(t, "physio-only", physio)
	away := env.Provider(t, "away", nursing)
	_, err := env.Catalog.SetAvailability(ctx, servicetest.Admin(), away.ID, false)
	require.NoError(t, err)
	b := env.PendingBooking(t, servicetest.Customer(), nursing)

	_, err = env.Bookings.AssignProvider(ctx, b.ID, unqualified.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindProviderNotQualified))

	_, err = env.Bookings.AssignProvider(ctx, b.ID, away.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindProviderUnavailable))

	_, err = env.Bookings.AssignProvider(ctx, b.ID, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = env.Bookings.AssignProvider(ctx, uuid.New(), away.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	current, err := env.Store.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, current.Status)
}

func TestAssignProvider_IdempotentAndReassign(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	nursing := env.Service(t, "Nursing", 80)
	first := env.Provider(t, "first", nursing)
	second := env.Provider(t, "second", nursing)
	b := env.ConfirmedBooking(t, servicetest.Customer(), nursing, first)
	events := len(env.EventTypes(t))

	again, err := env.Bookings.AssignProvider(ctx, b.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, b.UpdatedAt, again.UpdatedAt)
	assert.Len(t, env.EventTypes(t), events, "re-assigning the same provider is a no-op")

	swapped, err := env.Bookings.AssignProvider(ctx, b.ID, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, swapped.Status)
	assert.Equal(t, second.ID, *swapped.ProviderID)

	queue, err := env.Bookings.ListUnassignedWork(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1, "assigned bookings stay visible for reassignment")
	assert.Equal(t, b.ID, queue[0].ID)
}

func TestAssignProvider_RejectsStartedBooking(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	nursing := env.Service(t, "Nursing", 80)
	provider := env.Provider(t, "p", nursing)
	b := env.ConfirmedBooking(t, servicetest.Customer(), nursing, provider)

	_, err := env.Bookings.StartBooking(ctx, servicetest.ProviderActor(provider), b.ID)
	require.NoError(t, err)

	_, err = env.Bookings.AssignProvider(ctx, b.ID, provider.ID)
	require.True(t, apperrors.Is(err, apperrors.KindInvalidTransition))
	appErr, _ := apperrors.As(err)
	assert.Equal(t, "IN_PROGRESS", appErr.Details["current_status"])
}

func TestAssignProvider_ConcurrentAdmins(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	nursing := env.Service(t, "Nursing", 80)
	providers := []*model.Provider{
		env.Provider(t, "a", nursing),
		env.Provider(t, "b", nursing),
		env.Provider(t, "c", nursing),
	}
	b := env.PendingBooking(t, servicetest.Customer(), nursing)

	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p *model.Provider) {
			defer wg.Done()
			_, err := env.Bookings.AssignProvider(ctx, b.ID, p.ID)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	final, err := env.Store.Bookings().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, final.Status)
	require.NotNil(t, final.ProviderID)
	found := false
	for _, p := range providers {
		found = found || *final.ProviderID == p.ID
	}
	assert.True(t, found)
}

func TestCancelBooking(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	nursing := env.Service(t, "Nursing", 80)
	provider := env.Provider(t, "p", nursing)
	customer := servicetest.Customer()
	b := env.ConfirmedBooking(t, customer, nursing, provider)

	_, err := env.Bookings.CancelBooking(ctx, servicetest.ProviderActor(provider), b.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))

	_, err = env.Bookings.CancelBooking(ctx, servicetest.Customer(), b.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	cancelled, err := env.Bookings.CancelBooking(ctx, customer, b.ID, "travelling")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	assert.Equal(t, "travelling", *cancelled.CancellationReason)
	assert.Equal(t, customer.ID, *cancelled.CancelledBy)

	_, err = env.Bookings.CancelBooking(ctx, servicetest.Admin(), b.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidTransition))
}

func TestCancelBooking_ScenarioE(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	nursing := env.Service(t, "Nursing", 80)
	provider := env.Provider(t, "p", nursing)
	customer := servicetest.Customer()
	b := env.ConfirmedBooking(t, customer, nursing, provider)

	_, err := env.Bookings.CompleteBooking(ctx, servicetest.ProviderActor(provider), b.ID)
	require.NoError(t, err)

	_, err = env.Bookings.CancelBooking(ctx, customer, b.ID, "too late")
	require.True(t, apperrors.Is(err, apperrors.KindInvalidTransition))
	appErr, _ := apperrors.As(err)
	assert.Equal(t, "COMPLETED", appErr.Details["current_status"])
	assert.Equal(t, "CANCELLED", appErr.Details["requested_status"])
}

func TestStartAndComplete(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	nursing := env.Service(t, "Nursing", 80)
	provider := env.Provider(t, "p", nursing)
	other := env.Provider(t, "other", nursing)
	b := env.ConfirmedBooking(t, servicetest.Customer(), nursing, provider)

	_, err := env.Bookings.StartBooking(ctx, servicetest.ProviderActor(other), b.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotAssigned))

	started, err := env.Bookings.StartBooking(ctx, servicetest.ProviderActor(provider), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusInProgress, started.Status)

	_, err = env.Bookings.StartBooking(ctx, servicetest.ProviderActor(provider), b.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidTransition))

	_, err = env.Bookings.CancelBooking(ctx, servicetest.Admin(), b.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidTransition), "no cancellation once in progress")

	_, err = env.Bookings.CompleteBooking(ctx, servicetest.ProviderActor(other), b.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotAssigned))

	done, err := env.Bookings.CompleteBooking(ctx, servicetest.Admin(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, done.Status)

	_, err = env.Bookings.CompleteBooking(ctx, servicetest.Admin(), b.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidTransition))
}

func TestCompleteBooking_RequiresConfirmation(t *testing.T) {
	env := servicetest.NewEnv(t)
	nursing := env.Service(t, "Nursing", 80)
	b := env.PendingBooking(t, servicetest.Customer(), nursing)

	_, err := env.Bookings.CompleteBooking(context.Background(), servicetest.Admin(), b.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidTransition))
}

func TestListUnassignedWork_ExcludesTerminal(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	nursing := env.Service(t, "Nursing", 80)
	provider := env.Provider(t, "p", nursing)
	customer := servicetest.Customer()
	env.AcceptAll(t, customer.ID)

	create := func(days int) *model.Booking {
		b, err := env.Bookings.CreateBooking(ctx, customer.ID, servicetest.BookingRequest(nursing, days))
		require.NoError(t, err)
		return b
	}
	late := create(9)
	soon := create(1)
	cancelled := create(2)
	completed := create(3)
	confirmed := create(4)

	_, err := env.Bookings.CancelBooking(ctx, customer, cancelled.ID, "")
	require.NoError(t, err)
	_, err = env.Bookings.AssignProvider(ctx, completed.ID, provider.ID)
	require.NoError(t, err)
	_, err = env.Bookings.CompleteBooking(ctx, servicetest.Admin(), completed.ID)
	require.NoError(t, err)
	_, err = env.Bookings.AssignProvider(ctx, confirmed.ID, provider.ID)
	require.NoError(t, err)

	queue, err := env.Bookings.ListUnassignedWork(ctx)
	require.NoError(t, err)
	ids := make([]uuid.UUID, len(queue))
	for i, b := range queue {
		ids[i] = b.ID
		assert.False(t, b.Status.Terminal())
	}
	assert.Equal(t, []uuid.UUID{soon.ID, confirmed.ID, late.ID}, ids)
}

func TestListAndGetBookings_Scoped(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	nursing := env.Service(t, "Nursing", 80)
	provider := env.Provider(t, "p", nursing)
	alice := servicetest.Customer()
	bob := servicetest.Customer()
	ab := env.ConfirmedBooking(t, alice, nursing, provider)
	env.PendingBooking(t, bob, nursing)

	mine, err := env.Bookings.ListBookings(ctx, alice, model.BookingFilters{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, ab.ID, mine[0].ID)

	assigned, err := env.Bookings.ListBookings(ctx, servicetest.ProviderActor(provider), model.BookingFilters{})
	require.NoError(t, err)
	assert.Len(t, assigned, 1)

	pending, err := env.Bookings.ListBookings(ctx, servicetest.Admin(), model.BookingFilters{Status: model.BookingStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = env.Bookings.ListBookings(ctx, servicetest.Admin(), model.BookingFilters{Status: "LOST"})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidRequest))

	_, err = env.Bookings.GetBooking(ctx, bob, ab.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	_, err = env.Bookings.GetBooking(ctx, servicetest.ProviderActor(provider), ab.ID)
	assert.NoError(t, err)
}
