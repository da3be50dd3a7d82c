package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "PENDING"
	BookingStatusConfirmed  BookingStatus = "CONFIRMED"
	BookingStatusInProgress BookingStatus = "IN_PROGRESS"
	BookingStatusCompleted  BookingStatus = "COMPLETED"
	BookingStatusCancelled  BookingStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// bookingTransitions lists, per target status, the statuses it may be reached
// from. CONFIRMED -> PENDING is only taken when an approved rejection releases
// the provider.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:    {BookingStatusConfirmed},
	BookingStatusConfirmed:  {BookingStatusPending, BookingStatusConfirmed},
	BookingStatusInProgress: {BookingStatusConfirmed},
	BookingStatusCompleted:  {BookingStatusInProgress, BookingStatusConfirmed},
	BookingStatusCancelled:  {BookingStatusPending, BookingStatusConfirmed},
}

// TransitionSources returns the statuses from which to is reachable.
func TransitionSources(to BookingStatus) []BookingStatus {
	return bookingTransitions[to]
}

// CanTransitionTo reports whether the state machine allows s -> to.
func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, from := range bookingTransitions[to] {
		if from == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusInProgress,
		BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

type Booking struct {
	Base
	CustomerID          uuid.UUID     `db:"customer_id" json:"customer_id"`
	ServiceID           uuid.UUID     `db:"service_id" json:"service_id"`
	PatientID           *uuid.UUID    `db:"patient_id" json:"patient_id,omitempty"`
	ProviderID          *uuid.UUID    `db:"provider_id" json:"provider_id,omitempty"`
	ScheduledAt         time.Time     `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes     int           `db:"duration_minutes" json:"duration_minutes"`
	TotalAmount         float64       `db:"total_amount" json:"total_amount"`
	SpecialInstructions string        `db:"-" json:"special_instructions,omitempty"`
	Status              BookingStatus `db:"status" json:"status"`
	PaymentStatus       PaymentStatus `db:"payment_status" json:"payment_status"`
	CancellationReason  *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledBy         *uuid.UUID    `db:"cancelled_by" json:"cancelled_by,omitempty"`
}

// AssignedTo reports whether providerID is the booking's current provider.
func (b *Booking) AssignedTo(providerID uuid.UUID) bool {
	return b.ProviderID != nil && *b.ProviderID == providerID
}

// NeedsAttention is the unassigned-work predicate.
func (b *Booking) NeedsAttention() bool {
	return !b.Status.Terminal()
}

type CreateBookingRequest struct {
	ServiceID           uuid.UUID  `json:"service_id" binding:"required"`
	PatientID           *uuid.UUID `json:"patient_id"`
	ScheduledDate       string     `json:"scheduled_date" binding:"required,booking_date"`
	ScheduledTime       string     `json:"scheduled_time" binding:"required,clock_time"`
	DurationMinutes     *int       `json:"duration_minutes"`
	TotalAmount         *float64   `json:"total_amount"`
	SpecialInstructions string     `json:"special_instructions" binding:"max=2000"`
}

type AssignProviderRequest struct {
	ProviderID uuid.UUID `json:"provider_id" binding:"required"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// BookingFilters narrows ListBookings. Zero values do not filter.
type BookingFilters struct {
	CustomerID *uuid.UUID
	ProviderID *uuid.UUID
	Status     BookingStatus
}
