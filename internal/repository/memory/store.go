// Package memory is an in-process implementation of the repository
// interfaces, used for local development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository"
)

type relationKey struct {
	providerID uuid.UUID
	serviceID  uuid.UUID
}

type data struct {
	bookings         map[uuid.UUID]model.Booking
	rejections       map[uuid.UUID]model.RejectionRequest
	services         map[uuid.UUID]model.Service
	providers        map[uuid.UUID]model.Provider
	providerServices map[relationKey]time.Time
	serviceRequests  map[uuid.UUID]model.ServiceRequest
	consents         map[uuid.UUID]model.ConsentRecord
	patients         map[uuid.UUID]model.Patient
	payments         map[uuid.UUID]model.PaymentIntent
	outbox           map[uuid.UUID]model.OutboxEvent
}

func newData() *data {
	return &data{
		bookings:         make(map[uuid.UUID]model.Booking),
		rejections:       make(map[uuid.UUID]model.RejectionRequest),
		services:         make(map[uuid.UUID]model.Service),
		providers:        make(map[uuid.UUID]model.Provider),
		providerServices: make(map[relationKey]time.Time),
		serviceRequests:  make(map[uuid.UUID]model.ServiceRequest),
		consents:         make(map[uuid.UUID]model.ConsentRecord),
		patients:         make(map[uuid.UUID]model.Patient),
		payments:         make(map[uuid.UUID]model.PaymentIntent),
		outbox:           make(map[uuid.UUID]model.OutboxEvent),
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (d *data) clone() *data {
	return &data{
		bookings:         cloneMap(d.bookings),
		rejections:       cloneMap(d.rejections),
		services:         cloneMap(d.services),
		providers:        cloneMap(d.providers),
		providerServices: cloneMap(d.providerServices),
		serviceRequests:  cloneMap(d.serviceRequests),
		consents:         cloneMap(d.consents),
		patients:         cloneMap(d.patients),
		payments:         cloneMap(d.payments),
		outbox:           cloneMap(d.outbox),
	}
}

// Store holds every table. Records are stored by value and copied on the way
// in and out.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	data *data
}

func NewStore() *Store {
	return &Store{data: newData()}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// WithinTx serializes transactions against each other. If fn fails the store
// is restored to the snapshot taken when the transaction began.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// lockWrite locks the store for a single write and returns the unlock func.
// A write outside a transaction waits for the running one to finish, so a
// rollback never restores over it.
func (s *Store) lockWrite(ctx context.Context) func() {
	if s.inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

// Repositories exposes the store through the repository bundle.
func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Tx:               s,
		Bookings:         s.Bookings(),
		Rejections:       s.Rejections(),
		Catalog:          s.Catalog(),
		Providers:        s.Providers(),
		ProviderServices: s.ProviderServices(),
		ServiceRequests:  s.ServiceRequests(),
		Consents:         s.Consents(),
		Patients:         s.Patients(),
		Payments:         s.Payments(),
		Outbox:           s.Outbox(),
	}
}

func (s *Store) Bookings() repository.BookingRepository { return &bookingRepository{s} }

func (s *Store) Rejections() repository.RejectionRepository { return &rejectionRepository{s} }

func (s *Store) Catalog() repository.CatalogRepository { return &catalogRepository{s} }

func (s *Store) Providers() repository.ProviderRepository { return &providerRepository{s} }

func (s *Store) ProviderServices() repository.ProviderServiceRepository {
	return &providerServiceRepository{s}
}

func (s *Store) ServiceRequests() repository.ServiceRequestRepository {
	return &serviceRequestRepository{s}
}

func (s *Store) Consents() repository.ConsentRepository { return &consentRepository{s} }

func (s *Store) Patients() repository.PatientRepository { return &patientRepository{s} }

func (s *Store) Payments() repository.PaymentRepository { return &paymentRepository{s} }

func (s *Store) Outbox() repository.OutboxRepository { return &outboxRepository{s} }

// Ping lets the store stand in for a database in readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func hasStatus(status model.BookingStatus, from []model.BookingStatus) bool {
	for _, f := range from {
		if f == status {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T {
	return &v
}
