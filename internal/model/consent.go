package model

import (
	"time"

	"github.com/google/uuid"
)

type ConsentType string

const (
	ConsentTerms              ConsentType = "terms"
	ConsentPrivacy            ConsentType = "privacy"
	ConsentMedicalDataSharing ConsentType = "medical-data-sharing"
	ConsentCompliance         ConsentType = "compliance"
	ConsentEmergencyTreatment ConsentType = "emergency-treatment"
	ConsentDataRetention      ConsentType = "data-retention"
)

var consentTypes = []ConsentType{
	ConsentTerms,
	ConsentPrivacy,
	ConsentMedicalDataSharing,
	ConsentCompliance,
	ConsentEmergencyTreatment,
	ConsentDataRetention,
}

// ConsentTypes returns every known consent type.
func ConsentTypes() []ConsentType {
	out := make([]ConsentType, len(consentTypes))
	copy(out, consentTypes)
	return out
}

func (t ConsentType) Valid() bool {
	for _, known := range consentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ConsentRecord is one append-only acceptance of a policy document.
type ConsentRecord struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	UserID           uuid.UUID   `db:"user_id" json:"user_id"`
	PatientID        *uuid.UUID  `db:"patient_id" json:"patient_id,omitempty"`
	Type             ConsentType `db:"type" json:"type"`
	Version          string      `db:"version" json:"version"`
	Accepted         bool        `db:"accepted" json:"accepted"`
	AcceptedAt       time.Time   `db:"accepted_at" json:"accepted_at"`
	RevokedAt        *time.Time  `db:"revoked_at" json:"revoked_at,omitempty"`
	RevocationReason *string     `db:"revocation_reason" json:"revocation_reason,omitempty"`
}

func (r *ConsentRecord) Revoked() bool {
	return r.RevokedAt != nil
}

// Covers reports whether the record applies to patientID. User-wide records
// (no patient) cover every patient.
func (r *ConsentRecord) Covers(patientID *uuid.UUID) bool {
	if r.PatientID == nil {
		return true
	}
	return patientID != nil && *r.PatientID == *patientID
}

// ConsentPolicy is one currently enforced consent type and its version.
type ConsentPolicy struct {
	Type    ConsentType `mapstructure:"type" json:"type"`
	Version string      `mapstructure:"version" json:"version"`
	Title   string      `mapstructure:"title" json:"title,omitempty"`
}

// RequiredConsent annotates a policy with the user's standing.
type RequiredConsent struct {
	Type      ConsentType `json:"type"`
	Version   string      `json:"version"`
	Title     string      `json:"title,omitempty"`
	Satisfied bool        `json:"satisfied"`
	RecordID  *uuid.UUID  `json:"record_id,omitempty"`
}

type AcceptConsentRequest struct {
	Type      ConsentType `json:"type" binding:"required,consent_type"`
	Version   string      `json:"version" binding:"required,max=64"`
	PatientID *uuid.UUID  `json:"patient_id"`
}

type RevokeConsentRequest struct {
	ConsentID uuid.UUID `json:"consent_id" binding:"required"`
	Reason    string    `json:"reason" binding:"required,max=1000"`
}
