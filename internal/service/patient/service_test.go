package patient

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/repository/memory"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
)

type stubGate struct {
	missing []string
	calls   int
}

func (g *stubGate) RequireConsents(ctx context.Context, userID uuid.UUID, patientID *uuid.UUID) error {
	g.calls++
	if len(g.missing) > 0 {
		return apperrors.ConsentRequired(g.missing)
	}
	return nil
}

func TestCreatePatient_Gated(t *testing.T) {
	store := memory.NewStore()
	gate := &stubGate{missing: []string{"terms", "privacy"}}
	svc := NewService(store.Patients(), gate)
	customerID := uuid.New()
	req := &model.CreatePatientRequest{FullName: "Grace Hopper", Relationship: "mother", DateOfBirth: "1936-12-09"}

	_, err := svc.CreatePatient(context.Background(), customerID, req)
	require.True(t, apperrors.Is(err, apperrors.KindConsentRequired))
	list, err := svc.ListPatients(context.Background(), customerID)
	require.NoError(t, err)
	assert.Empty(t, list)

	gate.missing = nil
	patient, err := svc.CreatePatient(context.Background(), customerID, req)
	require.NoError(t, err)
	assert.Equal(t, customerID, patient.CustomerID)
	require.NotNil(t, patient.DateOfBirth)
	assert.Equal(t, 1936, patient.DateOfBirth.Year())
	assert.Equal(t, 2, gate.calls)
}

func TestCreatePatient_Validation(t *testing.T) {
	store := memory.NewStore()
	gate := &stubGate{}
	svc := NewService(store.Patients(), gate)

	_, err := svc.CreatePatient(context.Background(), uuid.New(), &model.CreatePatientRequest{FullName: "  ", Relationship: "self"})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidRequest))

	_, err = svc.CreatePatient(context.Background(), uuid.New(), &model.CreatePatientRequest{
		FullName: "Future", Relationship: "self", DateOfBirth: "2999-01-01",
	})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidRequest))
	assert.Zero(t, gate.calls, "validation runs before the consent gate")
}

func TestGetPatient_Scoped(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Patients(), &stubGate{})
	owner := uuid.New()

	patient, err := svc.CreatePatient(context.Background(), owner, &model.CreatePatientRequest{FullName: "Alan", Relationship: "father"})
	require.NoError(t, err)

	got, err := svc.GetPatient(context.Background(), auth.Actor{ID: owner, Role: auth.RoleCustomer}, patient.ID)
	require.NoError(t, err)
	assert.Equal(t, patient.ID, got.ID)

	_, err = svc.GetPatient(context.Background(), auth.Actor{ID: uuid.New(), Role: auth.RoleCustomer}, patient.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = svc.GetPatient(context.Background(), auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin}, patient.ID)
	assert.NoError(t, err)

	_, err = svc.GetPatient(context.Background(), auth.Actor{ID: owner, Role: auth.RoleCustomer}, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
