// Package servicetest wires the domain services over an in-memory store for
// tests.
package servicetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository/memory"
	"github.com/jwalitptl/homecare-api/internal/service/booking"
	"github.com/jwalitptl/homecare-api/internal/service/catalog"
	"github.com/jwalitptl/homecare-api/internal/service/consent"
	eventsvc "github.com/jwalitptl/homecare-api/internal/service/event"
	"github.com/jwalitptl/homecare-api/internal/service/patient"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
)

var Policies = []model.ConsentPolicy{
	{Type: model.ConsentTerms, Version: "1.0"},
	{Type: model.ConsentPrivacy, Version: "1.0"},
	{Type: model.ConsentMedicalDataSharing, Version: "1.0"},
	{Type: model.ConsentCompliance, Version: "1.0"},
}

type Env struct {
	Store    *memory.Store
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Events   *eventsvc.OutboxEmitter
	Consent  *consent.Service
	Catalog  *catalog.Service
	Patients *patient.Service
	Bookings *booking.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.New("test", reg)
	events := eventsvc.NewOutboxEmitter(store.Outbox())

	consentSvc := consent.NewService(store, store.Consents(), store.Patients(), events, Policies, m)
	catalogSvc := catalog.NewService(store, store.Catalog(), store.Providers(), store.ProviderServices(),
		store.ServiceRequests(), events, m, time.Minute)

	return &Env{
		Store:    store,
		Registry: reg,
		Metrics:  m,
		Events:   events,
		Consent:  consentSvc,
		Catalog:  catalogSvc,
		Patients: patient.NewService(store.Patients(), consentSvc),
		Bookings: booking.NewService(store, store.Bookings(), store.Patients(), catalogSvc, consentSvc, events, m, time.UTC),
	}
}

func Customer() auth.Actor { return auth.Actor{ID: uuid.New(), Role: auth.RoleCustomer} }

func Admin() auth.Actor { return auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin} }

func ProviderActor(p *model.Provider) auth.Actor {
	return auth.Actor{ID: p.ID, Role: auth.RoleProvider}
}

func (e *Env) Service(t *testing.T, name string, price float64) *model.Service {
	t.Helper()
	svc := &model.Service{
		Base:            model.NewBase(time.Now()),
		Name:            name,
		Category:        "home-care",
		DurationMinutes: 60,
		Price:           price,
		Active:          true,
	}
	require.NoError(t, e.Store.Catalog().Create(context.Background(), svc))
	return svc
}

// Provider creates an available provider offering services.
func (e *Env) Provider(t *testing.T, name string, services ...*model.Service) *model.Provider {
	t.Helper()
	ctx := context.Background()
	p := &model.Provider{Base: model.NewBase(time.Now()), FullName: name, Email: name + "@example.com", Available: true}
	require.NoError(t, e.Store.Providers().Create(ctx, p))
	for _, svc := range services {
		_, err := e.Store.ProviderServices().Add(ctx, p.ID, svc.ID, time.Now())
		require.NoError(t, err)
	}
	return p
}

// AcceptAll gives the user every required consent, user-wide.
func (e *Env) AcceptAll(t *testing.T, userID uuid.UUID) {
	t.Helper()
	for _, p := range Policies {
		_, err := e.Consent.AcceptConsent(context.Background(), userID, &model.AcceptConsentRequest{Type: p.Type, Version: p.Version})
		require.NoError(t, err)
	}
}

// BookingRequest schedules svc the given number of days from now.
func BookingRequest(svc *model.Service, days int) *model.CreateBookingRequest {
	at := time.Now().UTC().AddDate(0, 0, days)
	return &model.CreateBookingRequest{
		ServiceID:     svc.ID,
		ScheduledDate: at.Format("2006-01-02"),
		ScheduledTime: "10:00",
	}
}

// PendingBooking creates a booking for a consenting customer.
func (e *Env) PendingBooking(t *testing.T, customer auth.Actor, svc *model.Service) *model.Booking {
	t.Helper()
	e.AcceptAll(t, customer.ID)
	b, err := e.Bookings.CreateBooking(context.Background(), customer.ID, BookingRequest(svc, 2))
	require.NoError(t, err)
	return b
}

// ConfirmedBooking creates a booking and assigns provider to it.
func (e *Env) ConfirmedBooking(t *testing.T, customer auth.Actor, svc *model.Service, provider *model.Provider) *model.Booking {
	t.Helper()
	b := e.PendingBooking(t, customer, svc)
	b, err := e.Bookings.AssignProvider(context.Background(), b.ID, provider.ID)
	require.NoError(t, err)
	return b
}

// EventTypes lists the event types waiting in the outbox, oldest first.
func (e *Env) EventTypes(t *testing.T) []string {
	t.Helper()
	pending, err := e.Store.Outbox().GetPendingEvents(context.Background(), 0)
	require.NoError(t, err)
	types := make([]string, len(pending))
	for i, ev := range pending {
		types[i] = ev.EventType
	}
	return types
}
