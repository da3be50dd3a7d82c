package model

import (
	"time"

	"github.com/google/uuid"
)

type RejectionStatus string

const (
	RejectionStatusPending  RejectionStatus = "PENDING"
	RejectionStatusApproved RejectionStatus = "APPROVED"
	RejectionStatusDenied   RejectionStatus = "DENIED"
)

// RejectionRequest is a provider's request to be released from a booking.
// Resolved requests are kept as the audit trail of the decision.
type RejectionRequest struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	BookingID   uuid.UUID       `db:"booking_id" json:"booking_id"`
	ProviderID  uuid.UUID       `db:"provider_id" json:"provider_id"`
	Reason      string          `db:"reason" json:"reason"`
	Status      RejectionStatus `db:"status" json:"status"`
	AdminNotes  *string         `db:"admin_notes" json:"admin_notes,omitempty"`
	ResolvedBy  *uuid.UUID      `db:"resolved_by" json:"resolved_by,omitempty"`
	RequestedAt time.Time       `db:"requested_at" json:"requested_at"`
	ResolvedAt  *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Resolution is what an admin decision writes onto a pending request.
type Resolution struct {
	Status     RejectionStatus
	AdminNotes string
	ResolvedBy uuid.UUID
	ResolvedAt time.Time
}

type CreateRejectionRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
	Reason    string    `json:"reason" binding:"max=2000"`
}

type ResolveRejectionRequest struct {
	AdminNotes string `json:"admin_notes" binding:"max=2000"`
}

// RejectionOutcome is returned by approve/deny.
type RejectionOutcome struct {
	Request *RejectionRequest `json:"request"`
	Booking *Booking          `json:"booking"`
}
