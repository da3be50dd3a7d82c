package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	BookingCreated   EventType = "booking.created"
	BookingAssigned  EventType = "booking.assigned"
	BookingStarted   EventType = "booking.started"
	BookingCompleted EventType = "booking.completed"
	BookingCancelled EventType = "booking.cancelled"

	RejectionRequested EventType = "rejection.requested"
	RejectionApproved  EventType = "rejection.approved"
	RejectionDenied    EventType = "rejection.denied"

	ServiceRequestSubmitted EventType = "service_request.submitted"
	ServiceRequestApproved  EventType = "service_request.approved"
	ServiceRequestRejected  EventType = "service_request.rejected"
	ProviderServiceChanged  EventType = "provider_service.changed"

	ConsentAccepted EventType = "consent.accepted"
	ConsentRevoked  EventType = "consent.revoked"

	PaymentInitiated EventType = "payment.initiated"
	PaymentConfirmed EventType = "payment.confirmed"
)

// Channel is the pub/sub channel an event type is published on.
func Channel(prefix string, t EventType) string {
	if prefix == "" {
		return string(t)
	}
	return prefix + "." + string(t)
}

// Envelope is the message stored in the outbox and published to subscribers.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	ActorID     *uuid.UUID      `json:"actor_id,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// BookingChanged is the data of every booking.* event.
type BookingChanged struct {
	BookingID          uuid.UUID  `json:"booking_id"`
	CustomerID         uuid.UUID  `json:"customer_id"`
	ServiceID          uuid.UUID  `json:"service_id"`
	ProviderID         *uuid.UUID `json:"provider_id,omitempty"`
	PreviousProviderID *uuid.UUID `json:"previous_provider_id,omitempty"`
	Status             string     `json:"status"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
}

// RejectionChanged is the data of every rejection.* event.
type RejectionChanged struct {
	RequestID  uuid.UUID `json:"request_id"`
	BookingID  uuid.UUID `json:"booking_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	AdminNotes string    `json:"admin_notes,omitempty"`
}

// ServiceRequestChanged is the data of every service_request.* event.
type ServiceRequestChanged struct {
	RequestID       uuid.UUID `json:"request_id"`
	ProviderID      uuid.UUID `json:"provider_id"`
	ServiceID       uuid.UUID `json:"service_id"`
	Type            string    `json:"type"`
	Status          string    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
}

// ProviderServiceChange is the data of provider_service.changed.
type ProviderServiceChange struct {
	ProviderID uuid.UUID `json:"provider_id"`
	ServiceID  uuid.UUID `json:"service_id"`
	Present    bool      `json:"present"`
	Source     string    `json:"source"`
}

// ConsentChanged is the data of consent.* events.
type ConsentChanged struct {
	RecordID  uuid.UUID  `json:"record_id"`
	UserID    uuid.UUID  `json:"user_id"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
	Type      string     `json:"type"`
	Version   string     `json:"version"`
}

// PaymentChanged is the data of payment.* events.
type PaymentChanged struct {
	IntentID  uuid.UUID `json:"intent_id"`
	BookingID uuid.UUID `json:"booking_id"`
	Method    string    `json:"method"`
	Timing    string    `json:"timing"`
	Status    string    `json:"status"`
	Amount    float64   `json:"amount"`
}
