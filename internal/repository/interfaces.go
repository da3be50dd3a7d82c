package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-api/internal/model"
)

var (
	// ErrNotFound is returned when no record matches the key.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned by conditional updates whose precondition no
	// longer holds (the record moved on concurrently or was never eligible).
	ErrConflict = errors.New("record is not in the expected state")
	// ErrDuplicate is returned when a uniqueness guard rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
)

// Transactor runs fn in a transaction. Repositories called with the ctx
// passed to fn take part in that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// All repository interfaces in one file
type (
	BookingRepository interface {
		Create(ctx context.Context, booking *model.Booking) error
		Get(ctx context.Context, id uuid.UUID) (*model.Booking, error)
		List(ctx context.Context, filters model.BookingFilters) ([]*model.Booking, error)
		// ListUnassigned returns non-terminal bookings, earliest scheduled first.
		ListUnassigned(ctx context.Context) ([]*model.Booking, error)
		// AssignProvider sets the provider and CONFIRMED when the booking is
		// PENDING or CONFIRMED; ErrConflict otherwise.
		AssignProvider(ctx context.Context, id, providerID uuid.UUID, at time.Time) (*model.Booking, error)
		// Transition moves the booking to `to` if its status is one of from.
		Transition(ctx context.Context, id uuid.UUID, from []model.BookingStatus, to model.BookingStatus, at time.Time) (*model.Booking, error)
		Cancel(ctx context.Context, id uuid.UUID, from []model.BookingStatus, reason string, by uuid.UUID, at time.Time) (*model.Booking, error)
		// ReleaseProvider clears the provider and returns the booking to PENDING
		// if it is still assigned to providerID and its status is one of from.
		ReleaseProvider(ctx context.Context, id, providerID uuid.UUID, from []model.BookingStatus, at time.Time) (*model.Booking, error)
		// UpdatePaymentStatus sets the payment status if the current one is in from.
		UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus, at time.Time) (*model.Booking, error)
	}

	RejectionRepository interface {
		// Create fails with ErrDuplicate while a PENDING request exists for
		// the same booking and provider.
		Create(ctx context.Context, req *model.RejectionRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.RejectionRequest, error)
		// ListByStatus returns requests oldest-requested first.
		ListByStatus(ctx context.Context, status model.RejectionStatus) ([]*model.RejectionRequest, error)
		ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*model.RejectionRequest, error)
		// Resolve applies res only if the request is still PENDING.
		Resolve(ctx context.Context, id uuid.UUID, res model.Resolution) (*model.RejectionRequest, error)
	}

	CatalogRepository interface {
		Create(ctx context.Context, service *model.Service) error
		Get(ctx context.Context, id uuid.UUID) (*model.Service, error)
		List(ctx context.Context, activeOnly bool) ([]*model.Service, error)
	}

	ProviderRepository interface {
		Create(ctx context.Context, provider *model.Provider) error
		Get(ctx context.Context, id uuid.UUID) (*model.Provider, error)
		List(ctx context.Context, filter model.ProviderServiceFilter) ([]*model.Provider, error)
		SetAvailability(ctx context.Context, id uuid.UUID, available bool, at time.Time) (*model.Provider, error)
	}

	ProviderServiceRepository interface {
		ListServiceIDs(ctx context.Context, providerID uuid.UUID) ([]uuid.UUID, error)
		Exists(ctx context.Context, providerID, serviceID uuid.UUID) (bool, error)
		// Add and Remove are idempotent and report whether the relation changed.
		Add(ctx context.Context, providerID, serviceID uuid.UUID, at time.Time) (bool, error)
		Remove(ctx context.Context, providerID, serviceID uuid.UUID) (bool, error)
	}

	ServiceRequestRepository interface {
		// Create fails with ErrDuplicate while a PENDING request exists for
		// the same provider, service and type.
		Create(ctx context.Context, req *model.ServiceRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error)
		List(ctx context.Context, providerID *uuid.UUID, status model.ServiceRequestStatus) ([]*model.ServiceRequest, error)
		// Resolve sets status only if the request is still PENDING.
		Resolve(ctx context.Context, id uuid.UUID, status model.ServiceRequestStatus, reason *string, by uuid.UUID, at time.Time) (*model.ServiceRequest, error)
	}

	ConsentRepository interface {
		Create(ctx context.Context, record *model.ConsentRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.ConsentRecord, error)
		ListByUser(ctx context.Context, userID uuid.UUID) ([]*model.ConsentRecord, error)
		// FindActive returns the unrevoked record with exactly this scope.
		FindActive(ctx context.Context, userID uuid.UUID, consentType model.ConsentType, version string, patientID *uuid.UUID) (*model.ConsentRecord, error)
		// Revoke fails with ErrConflict if the record is already revoked.
		Revoke(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*model.ConsentRecord, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]*model.Patient, error)
	}

	PaymentRepository interface {
		Create(ctx context.Context, intent *model.PaymentIntent) error
		Get(ctx context.Context, id uuid.UUID) (*model.PaymentIntent, error)
		ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]*model.PaymentIntent, error)
		// UpdateStatus settles an intent that is not yet settled.
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.PaymentIntentStatus, failureReason *string, at time.Time) (*model.PaymentIntent, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// GetPendingEvents locks up to limit due events for the calling transaction.
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
		// MarkFailed records a delivery failure. A nil retryAt fails the event
		// permanently, otherwise it stays pending until retryAt.
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// Repositories bundles one implementation of every repository around a
// shared transactor.
type Repositories struct {
	Tx               Transactor
	Bookings         BookingRepository
	Rejections       RejectionRepository
	Catalog          CatalogRepository
	Providers        ProviderRepository
	ProviderServices ProviderServiceRepository
	ServiceRequests  ServiceRequestRepository
	Consents         ConsentRepository
	Patients         PatientRepository
	Payments         PaymentRepository
	Outbox           OutboxRepository
}
