package model

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a care recipient managed by a customer account.
type Patient struct {
	Base
	CustomerID   uuid.UUID  `db:"customer_id" json:"customer_id"`
	FullName     string     `db:"full_name" json:"full_name"`
	DateOfBirth  *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender       string     `db:"gender" json:"gender,omitempty"`
	Relationship string     `db:"relationship" json:"relationship"`
	MedicalNotes string     `db:"medical_notes" json:"medical_notes,omitempty"`
}

type CreatePatientRequest struct {
	FullName     string `json:"full_name" binding:"required,max=200"`
	DateOfBirth  string `json:"date_of_birth" binding:"omitempty,booking_date"`
	Gender       string `json:"gender" binding:"omitempty,oneof=male female other"`
	Relationship string `json:"relationship" binding:"required,max=50"`
	MedicalNotes string `json:"medical_notes" binding:"max=4000"`
}
