package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-api/internal/gateway"
	"github.com/jwalitptl/homecare-api/internal/handler"
	bookingHandler "github.com/jwalitptl/homecare-api/internal/handler/booking"
	catalogHandler "github.com/jwalitptl/homecare-api/internal/handler/catalog"
	consentHandler "github.com/jwalitptl/homecare-api/internal/handler/consent"
	patientHandler "github.com/jwalitptl/homecare-api/internal/handler/patient"
	paymentHandler "github.com/jwalitptl/homecare-api/internal/handler/payment"
	rejectionHandler "github.com/jwalitptl/homecare-api/internal/handler/rejection"
	"github.com/jwalitptl/homecare-api/internal/middleware"
	"github.com/jwalitptl/homecare-api/internal/model"
	"github.com/jwalitptl/homecare-api/internal/router"
	"github.com/jwalitptl/homecare-api/internal/service/payment"
	"github.com/jwalitptl/homecare-api/internal/service/rejection"
	"github.com/jwalitptl/homecare-api/internal/service/servicetest"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	apperrors "github.com/jwalitptl/homecare-api/pkg/errors"
)

type noGateway struct{}

func (noGateway) Initiate(context.Context, gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	return nil, gateway.ErrNotConfigured
}

func (noGateway) CheckStatus(context.Context, string) (gateway.Status, error) {
	return "", gateway.ErrNotConfigured
}

type api struct {
	t      *testing.T
	env    *servicetest.Env
	tokens *auth.TokenService
	router *router.Router
}

func newAPI(t *testing.T) *api {
	t.Helper()
	env := servicetest.NewEnv(t)
	tokens := auth.NewTokenService("router-test-secret", "homecare", time.Hour)
	authMW := middleware.NewAuthMiddleware(tokens)

	rejections := rejection.NewService(env.Store, env.Store.Rejections(), env.Store.Bookings(), env.Events, env.Metrics)
	payments := payment.NewService(env.Store, env.Store.Payments(), env.Store.Bookings(), noGateway{}, env.Events, env.Metrics, "")

	handlers := []router.Handler{
		bookingHandler.NewHandler(env.Bookings, authMW),
		rejectionHandler.NewHandler(rejections, authMW),
		catalogHandler.NewHandler(env.Catalog, authMW),
		consentHandler.NewHandler(env.Consent),
		patientHandler.NewHandler(env.Patients, authMW),
		paymentHandler.NewHandler(payments, authMW),
	}
	health := handler.NewHealth(map[string]handler.Pinger{"database": env.Store})

	r := router.NewRouter(authMW, health, handlers, env.Metrics, env.Registry, zerolog.Nop(), router.RouterConfig{
		Mode:         "test",
		RateLimitOff: true,
		CORSConfig:   middleware.DefaultCORSConfig([]string{"http://localhost:3000"}),
		MaxBodyBytes: 1 << 20,
	})
	r.Setup()

	return &api{t: t, env: env, tokens: tokens, router: r}
}

type response struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	ErrorKind apperrors.Kind  `json:"error_kind"`
	Details   map[string]any  `json:"details"`
}

func (a *api) do(actor *auth.Actor, method, path string, body any) (int, response) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		token, err := a.tokens.Issue(*actor)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func decode[T any](t *testing.T, resp response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

func bookingBody(svc *model.Service) map[string]any {
	at := time.Now().UTC().AddDate(0, 0, 3)
	return map[string]any{
		"service_id":     svc.ID,
		"scheduled_date": at.Format("2006-01-02"),
		"scheduled_time": "09:30",
	}
}

func TestBookingFlow_ConsentGateThenAssignAndRelease(t *testing.T) {
	a := newAPI(t)
	svc := a.env.Service(t, "Wound care", 80)
	nurse := a.env.Provider(t, "nurse", svc)

	customer := servicetest.Customer()
	admin := servicetest.Admin()
	provider := servicetest.ProviderActor(nurse)

	code, resp := a.do(&customer, http.MethodPost, "/api/v1/bookings", bookingBody(svc))
	require.Equal(t, http.StatusPreconditionFailed, code)
	assert.Equal(t, apperrors.KindConsentRequired, resp.ErrorKind)
	assert.Len(t, resp.Details["missing"], len(servicetest.Policies))

	for _, p := range servicetest.Policies {
		code, _ = a.do(&customer, http.MethodPost, "/api/v1/consents/accept", map[string]any{
			"type": p.Type, "version": p.Version,
		})
		require.Equal(t, http.StatusOK, code)
	}

	code, resp = a.do(&customer, http.MethodPost, "/api/v1/bookings", bookingBody(svc))
	require.Equal(t, http.StatusCreated, code)
	created := decode[model.Booking](t, resp)
	assert.Equal(t, model.BookingStatusPending, created.Status)
	assert.Equal(t, 80.0, created.TotalAmount)

	code, resp = a.do(&admin, http.MethodPost, "/api/v1/bookings/"+created.ID.String()+"/assign-provider", map[string]any{
		"provider_id": nurse.ID,
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.BookingStatusConfirmed, decode[model.Booking](t, resp).Status)

	reject := map[string]any{"booking_id": created.ID, "reason": "family emergency"}
	code, resp = a.do(&provider, http.MethodPost, "/api/v1/rejection-requests", reject)
	require.Equal(t, http.StatusCreated, code)
	request := decode[model.RejectionRequest](t, resp)

	code, resp = a.do(&provider, http.MethodPost, "/api/v1/rejection-requests", reject)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, apperrors.KindDuplicateRequest, resp.ErrorKind)

	code, resp = a.do(&admin, http.MethodPost, "/api/v1/rejection-requests/"+request.ID.String()+"/approve", nil)
	require.Equal(t, http.StatusOK, code)
	outcome := decode[model.RejectionOutcome](t, resp)
	assert.Equal(t, model.RejectionStatusApproved, outcome.Request.Status)
	assert.Equal(t, model.BookingStatusPending, outcome.Booking.Status)
	assert.Nil(t, outcome.Booking.ProviderID)

	code, resp = a.do(&admin, http.MethodGet, "/api/v1/bookings?unassigned=true", nil)
	require.Equal(t, http.StatusOK, code)
	unassigned := decode[[]model.Booking](t, resp)
	require.Len(t, unassigned, 1)
	assert.Equal(t, created.ID, unassigned[0].ID)
}

func TestRejectionDenied_KeepsProvider(t *testing.T) {
	a := newAPI(t)
	svc := a.env.Service(t, "Physiotherapy", 120)
	nurse := a.env.Provider(t, "physio", svc)
	customer := servicetest.Customer()
	admin := servicetest.Admin()
	provider := servicetest.ProviderActor(nurse)
	booking := a.env.ConfirmedBooking(t, customer, svc, nurse)

	code, resp := a.do(&provider, http.MethodPost, "/api/v1/rejection-requests", map[string]any{
		"booking_id": booking.ID, "reason": "schedule clash",
	})
	require.Equal(t, http.StatusCreated, code)
	request := decode[model.RejectionRequest](t, resp)

	code, resp = a.do(&admin, http.MethodPost, "/api/v1/rejection-requests/"+request.ID.String()+"/deny",
		map[string]any{"admin_notes": "no cover available"})
	require.Equal(t, http.StatusOK, code)
	outcome := decode[model.RejectionOutcome](t, resp)
	assert.Equal(t, model.RejectionStatusDenied, outcome.Request.Status)
	assert.Equal(t, model.BookingStatusConfirmed, outcome.Booking.Status)
	require.NotNil(t, outcome.Booking.ProviderID)
	assert.Equal(t, nurse.ID, *outcome.Booking.ProviderID)
}

func TestCashPaymentFlow(t *testing.T) {
	a := newAPI(t)
	svc := a.env.Service(t, "Elder care", 60)
	nurse := a.env.Provider(t, "carer", svc)
	customer := servicetest.Customer()
	admin := servicetest.Admin()
	booking := a.env.ConfirmedBooking(t, customer, svc, nurse)

	code, resp := a.do(&customer, http.MethodPost, "/api/v1/payments", map[string]any{
		"booking_id": booking.ID, "amount": 60, "method": "CASH", "timing": "POST_SERVICE",
	})
	require.Equal(t, http.StatusCreated, code)
	intent := decode[model.PaymentIntent](t, resp)
	assert.Equal(t, model.PaymentIntentCollectOnDelivery, intent.Status)

	code, _ = a.do(&customer, http.MethodPost, "/api/v1/payments/"+intent.ID.String()+"/confirm", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = a.do(&admin, http.MethodPost, "/api/v1/payments/"+intent.ID.String()+"/confirm", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.PaymentIntentSucceeded, decode[model.PaymentIntent](t, resp).Status)

	code, resp = a.do(&customer, http.MethodGet, "/api/v1/bookings/"+booking.ID.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.PaymentStatusPaid, decode[model.Booking](t, resp).PaymentStatus)
}

func TestGatewayUnavailable(t *testing.T) {
	a := newAPI(t)
	svc := a.env.Service(t, "Nursing", 90)
	nurse := a.env.Provider(t, "nurse", svc)
	customer := servicetest.Customer()
	booking := a.env.ConfirmedBooking(t, customer, svc, nurse)

	code, resp := a.do(&customer, http.MethodPost, "/api/v1/payments", map[string]any{
		"booking_id": booking.ID, "amount": 90, "method": "GATEWAY", "timing": "ADVANCE",
	})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, apperrors.KindPaymentInitiationFailed, resp.ErrorKind)
}

func TestAccessControl(t *testing.T) {
	a := newAPI(t)
	customer := servicetest.Customer()
	provider := auth.Actor{ID: uuid.New(), Role: auth.RoleProvider}

	code, resp := a.do(nil, http.MethodGet, "/api/v1/bookings", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, apperrors.KindUnauthorized, resp.ErrorKind)

	code, _ = a.do(&customer, http.MethodGet, "/api/v1/rejection-requests", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(&customer, http.MethodGet, "/api/v1/bookings?unassigned=true", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(&provider, http.MethodPost, "/api/v1/bookings", map[string]any{})
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = a.do(&customer, http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, apperrors.KindNotFound, resp.ErrorKind)

	code, resp = a.do(&customer, http.MethodGet, "/api/v1/bookings/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperrors.KindInvalidRequest, resp.ErrorKind)
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)

	code, _ := a.do(nil, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, code)
	code, resp := a.do(nil, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", resp.Status)

	code, _ = a.do(nil, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
	assert.Contains(t, w.Body.String(), `path="/health/ready"`)
}
