package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/homecare-api/internal/repository"
	"github.com/jwalitptl/homecare-api/pkg/security"
)

// NewRepositories builds every postgres repository over one pool.
func NewRepositories(db *sqlx.DB, enc security.Encryptor) *repository.Repositories {
	base := NewBaseRepository(db)
	return &repository.Repositories{
		Tx:               base,
		Bookings:         NewBookingRepository(base, enc),
		Rejections:       NewRejectionRepository(base),
		Catalog:          NewCatalogRepository(base),
		Providers:        NewProviderRepository(base),
		ProviderServices: NewProviderServiceRepository(base),
		ServiceRequests:  NewServiceRequestRepository(base),
		Consents:         NewConsentRepository(base),
		Patients:         NewPatientRepository(base),
		Payments:         NewPaymentRepository(base),
		Outbox:           NewOutboxRepository(base),
	}
}
