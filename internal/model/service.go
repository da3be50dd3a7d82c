package model

import (
	"time"

	"github.com/google/uuid"
)

// Service is a catalog entry customers can book.
type Service struct {
	Base
	Name            string  `db:"name" json:"name"`
	Category        string  `db:"category" json:"category"`
	Description     string  `db:"description" json:"description"`
	DurationMinutes int     `db:"duration_minutes" json:"duration_minutes"`
	Price           float64 `db:"price" json:"price"`
	Active          bool    `db:"active" json:"active"`
}

type ServiceRequestType string

const (
	ServiceRequestAdd    ServiceRequestType = "ADD"
	ServiceRequestRemove ServiceRequestType = "REMOVE"
)

func (t ServiceRequestType) Valid() bool {
	return t == ServiceRequestAdd || t == ServiceRequestRemove
}

// Present is the relation state approving a request of this type produces.
func (t ServiceRequestType) Present() bool {
	return t == ServiceRequestAdd
}

type ServiceRequestStatus string

const (
	ServiceRequestPending  ServiceRequestStatus = "PENDING"
	ServiceRequestApproved ServiceRequestStatus = "APPROVED"
	ServiceRequestRejected ServiceRequestStatus = "REJECTED"
)

// ServiceRequest is a provider's proposal to change their own catalog.
type ServiceRequest struct {
	Base
	ProviderID      uuid.UUID            `db:"provider_id" json:"provider_id"`
	ServiceID       uuid.UUID            `db:"service_id" json:"service_id"`
	Type            ServiceRequestType   `db:"type" json:"type"`
	Notes           *string              `db:"notes" json:"notes,omitempty"`
	Status          ServiceRequestStatus `db:"status" json:"status"`
	RejectionReason *string              `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ResolvedBy      *uuid.UUID           `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time           `db:"resolved_at" json:"resolved_at,omitempty"`
}

type SubmitServiceRequest struct {
	ServiceID uuid.UUID          `json:"service_id" binding:"required"`
	Type      ServiceRequestType `json:"type" binding:"required,oneof=ADD REMOVE"`
	Notes     *string            `json:"notes" binding:"omitempty,max=2000"`
}

type RejectServiceRequest struct {
	Reason string `json:"reason" binding:"max=2000"`
}

type SetProviderServicesRequest struct {
	ServiceIDs []uuid.UUID `json:"service_ids" binding:"required"`
}

type AddProviderServiceRequest struct {
	ServiceID uuid.UUID `json:"service_id" binding:"required"`
}

type ServiceChangeAction string

const (
	ServiceChangeAdded   ServiceChangeAction = "added"
	ServiceChangeRemoved ServiceChangeAction = "removed"
)

// ServiceChange is the per-id outcome of a bulk catalog update.
type ServiceChange struct {
	ServiceID uuid.UUID           `json:"service_id"`
	Action    ServiceChangeAction `json:"action"`
	OK        bool                `json:"ok"`
	ErrorKind string              `json:"error_kind,omitempty"`
	Error     string              `json:"error,omitempty"`
}
