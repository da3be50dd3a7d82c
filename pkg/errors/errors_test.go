package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAppError_StatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		code int
	}{
		{InvalidTransition("booking", "COMPLETED", "CANCELLED"), http.StatusConflict},
		{NotAssigned("not yours"), http.StatusForbidden},
		{ProviderNotQualified(uuid.New(), uuid.New()), http.StatusUnprocessableEntity},
		{ConsentRequired([]string{"terms"}), http.StatusPreconditionFailed},
		{PaymentInitiationFailed("gateway down", nil), http.StatusBadGateway},
		{BadRequest("bad", nil), http.StatusBadRequest},
		{NotFound("booking", nil), http.StatusNotFound},
		{Unauthorized(nil), http.StatusUnauthorized},
		{New("Unheard", "x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.StatusCode())
		})
	}
}

func TestAppError_WrapsCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := fmt.Errorf("initiate: %w", PaymentInitiationFailed("gateway unreachable", cause))

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, KindPaymentInitiationFailed))
	assert.False(t, Is(err, KindNotFound))
	assert.Equal(t, KindPaymentInitiationFailed, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(cause))
	assert.Equal(t, "PaymentInitiationFailed: gateway unreachable: connection reset", stderrors.Unwrap(err).Error())
}

func TestDetails(t *testing.T) {
	err := InvalidTransition("booking", "PENDING", "IN_PROGRESS")
	assert.Equal(t, "PENDING", err.Details["current_status"])
	assert.Equal(t, "IN_PROGRESS", err.Details["requested_status"])

	missing := []string{"terms", "privacy"}
	consent := ConsentRequired(missing)
	assert.Equal(t, missing, consent.Details["missing"])
	assert.Equal(t, "2 required consent(s) not accepted", consent.Message)
}
