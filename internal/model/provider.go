package model

import (
	"github.com/google/uuid"
)

// Provider is a care professional that can be assigned to bookings.
type Provider struct {
	Base
	FullName  string `db:"full_name" json:"full_name"`
	Email     string `db:"email" json:"email"`
	Phone     string `db:"phone" json:"phone,omitempty"`
	Available bool   `db:"available" json:"available"`
}

type SetAvailabilityRequest struct {
	Available *bool `json:"available" binding:"required"`
}

// ProviderServiceFilter narrows provider listings.
type ProviderServiceFilter struct {
	ServiceID     *uuid.UUID
	AvailableOnly bool
}
