package rejection_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/service/rejection"
	"github.com/jwalitptl/homecare-api/internal/service/servicetest"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
	"github.com/jwalitptl/homecare-api/pkg/event"
)

type fixture struct {
	env      *servicetest.Env
	svc      *rejection.Service
	provider *model.Provider
	booking  *model.Booking
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := servicetest.NewEnv(t)
	nursing := env.Service(t, "Nursing", 80)
	provider := env.Provider(t, "florence", nursing)
	return &fixture{
		env:      env,
		svc:      rejection.NewService(env.Store, env.Store.Rejections(), env.Store.Bookings(), env.Events, env.Metrics),
		provider: provider,
		booking:  env.ConfirmedBooking(t, servicetest.Customer(), nursing, provider),
	}
}

func (f *fixture) request(t *testing.T, reason string) *model.RejectionRequest {
	t.Helper()
	req, err := f.svc.RequestRejection(context.Background(), f.provider.ID, &model.CreateRejectionRequest{
		BookingID: f.booking.ID, Reason: reason,
	})
	require.NoError(t, err)
	return req
}

func TestApproveRejection_ScenarioB(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "schedule conflict")
	assert.Equal(t, model.RejectionStatusPending, req.Status)

	outcome, err := f.svc.ApproveRejection(context.Background(), uuid.New(), req.ID, "reassign")
	require.NoError(t, err)
	assert.Equal(t, model.RejectionStatusApproved, outcome.Request.Status)
	assert.Equal(t, "reassign", *outcome.Request.AdminNotes)
	assert.Equal(t, model.BookingStatusPending, outcome.Booking.Status)
	assert.Nil(t, outcome.Booking.ProviderID)

	stored, err := f.env.Store.Bookings().Get(context.Background(), f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, stored.Status)
	assert.Nil(t, stored.ProviderID)

	queue, err := f.env.Bookings.ListUnassignedWork(context.Background())
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, f.booking.ID, queue[0].ID)
	assert.Contains(t, f.env.EventTypes(t), string(event.RejectionApproved))
}

func TestDenyRejection_ScenarioC(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "too far")

	outcome, err := f.svc.DenyRejection(context.Background(), uuid.New(), req.ID, "provider must complete")
	require.NoError(t, err)
	assert.Equal(t, model.RejectionStatusDenied, outcome.Request.Status)
	assert.Equal(t, model.BookingStatusConfirmed, outcome.Booking.Status)
	require.NotNil(t, outcome.Booking.ProviderID)
	assert.Equal(t, f.provider.ID, *outcome.Booking.ProviderID)
	assert.Equal(t, f.booking.UpdatedAt, outcome.Booking.UpdatedAt)
}

func TestResolve_NotesNeverDecide(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "sick")

	outcome, err := f.svc.ApproveRejection(context.Background(), uuid.New(), req.ID, "provider must complete")
	require.NoError(t, err)
	assert.Equal(t, model.RejectionStatusApproved, outcome.Request.Status)
	assert.Equal(t, model.BookingStatusPending, outcome.Booking.Status)

	_, err = f.svc.Resolve(context.Background(), uuid.New(), req.ID, "MAYBE", "")
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidRequest))
}

func TestResolve_SecondDecisionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "schedule conflict")

	_, err := f.svc.ApproveRejection(ctx, uuid.New(), req.ID, "")
	require.NoError(t, err)

	_, err = f.svc.DenyRejection(ctx, uuid.New(), req.ID, "")
	require.True(t, apperrors.Is(err, apperrors.KindAlreadyResolved))
	appErr, _ := apperrors.As(err)
	assert.Equal(t, "APPROVED", appErr.Details["current_status"])

	approved, err := f.svc.ListRejections(ctx, model.RejectionStatusApproved, nil)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	booking, err := f.env.Store.Bookings().Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, booking.Status, "the first decision's effect is preserved")
}

func TestResolve_DenyThenApproveFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "too far")

	_, err := f.svc.DenyRejection(ctx, uuid.New(), req.ID, "")
	require.NoError(t, err)
	_, err = f.svc.ApproveRejection(ctx, uuid.New(), req.ID, "")
	require.True(t, apperrors.Is(err, apperrors.KindAlreadyResolved))

	booking, err := f.env.Store.Bookings().Get(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, booking.Status)
	assert.True(t, booking.AssignedTo(f.provider.ID))
}

func TestResolve_ConcurrentAdminsFirstWins(t *testing.T) {
	f := newFixture(t)
	req := f.request(t, "schedule conflict")

	const admins = 10
	errs := make([]error, admins)
	var wg sync.WaitGroup
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := model.DecisionApprove
			if i%2 == 1 {
				decision = model.DecisionDeny
			}
			_, errs[i] = f.svc.Resolve(context.Background(), uuid.New(), req.ID, decision, "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, apperrors.Is(err, apperrors.KindAlreadyResolved))
	}
	assert.Equal(t, 1, wins)

	pending, err := f.svc.ListRejections(context.Background(), model.RejectionStatusPending, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRequestRejection_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.request(t, "schedule conflict")

	_, err := f.svc.RequestRejection(ctx, f.provider.ID, &model.CreateRejectionRequest{BookingID: f.booking.ID, Reason: "again"})
	assert.True(t, apperrors.Is(err, apperrors.KindDuplicateRequest))

	pending, err := f.svc.ListRejections(ctx, "", &f.booking.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.svc.DenyRejection(ctx, uuid.New(), first.ID, "")
	require.NoError(t, err)
	_, err = f.svc.RequestRejection(ctx, f.provider.ID, &model.CreateRejectionRequest{BookingID: f.booking.ID, Reason: "really cannot"})
	assert.NoError(t, err, "a new request is allowed once the previous one is resolved")
}

func TestRequestRejection_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestRejection(ctx, f.provider.ID, &model.CreateRejectionRequest{BookingID: f.booking.ID, Reason: "  "})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidRequest))

	_, err = f.svc.RequestRejection(ctx, uuid.New(), &model.CreateRejectionRequest{BookingID: f.booking.ID, Reason: "not mine"})
	assert.True(t, apperrors.Is(err, apperrors.KindNotAssigned))

	_, err = f.svc.RequestRejection(ctx, f.provider.ID, &model.CreateRejectionRequest{BookingID: uuid.New(), Reason: "x"})
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = f.env.Bookings.StartBooking(ctx, servicetest.ProviderActor(f.provider), f.booking.ID)
	require.NoError(t, err)
	_, err = f.svc.RequestRejection(ctx, f.provider.ID, &model.CreateRejectionRequest{BookingID: f.booking.ID, Reason: "late"})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidTransition))
}

func TestApproveRejection_AfterReassignmentLeavesBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.request(t, "schedule conflict")

	booking, err := f.env.Store.Bookings().Get(ctx, f.booking.ID)
	require.NoError(t, err)
	replacement := f.env.Provider(t, "mary")
	_, err = f.env.Store.ProviderServices().Add(ctx, replacement.ID, booking.ServiceID, time.Now())
	require.NoError(t, err)
	_, err = f.env.Bookings.AssignProvider(ctx, f.booking.ID, replacement.ID)
	require.NoError(t, err)

	outcome, err := f.svc.ApproveRejection(ctx, uuid.New(), req.ID, "already handled")
	require.NoError(t, err)
	assert.Equal(t, model.RejectionStatusApproved, outcome.Request.Status)
	assert.Equal(t, model.BookingStatusConfirmed, outcome.Booking.Status)
	assert.True(t, outcome.Booking.AssignedTo(replacement.ID))
}

func TestListRejections_OldestFirst(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	svc := rejection.NewService(env.Store, env.Store.Rejections(), env.Store.Bookings(), env.Events, env.Metrics)
	nursing := env.Service(t, "Nursing", 80)
	provider := env.Provider(t, "p", nursing)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		b := env.ConfirmedBooking(t, servicetest.Customer(), nursing, provider)
		req, err := svc.RequestRejection(ctx, provider.ID, &model.CreateRejectionRequest{BookingID: b.ID, Reason: "busy"})
		require.NoError(t, err)
		ids = append(ids, req.ID)
		time.Sleep(time.Millisecond)
	}

	pending, err := svc.ListRejections(ctx, "", nil)
	require.NoError(t, err)
	got := make([]uuid.UUID, len(pending))
	for i, r := range pending {
		got[i] = r.ID
	}
	assert.Equal(t, ids, got)

	_, err = svc.ListRejections(ctx, "LOST", nil)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidRequest))
}
