package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-api/pkg/circuitbreaker"
)

func TestHTTPClient_Initiate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req InitiateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "intent-1", req.Reference)
		assert.Equal(t, 42.5, req.Amount)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(InitiateResult{Reference: "gw-1", RedirectURL: "https://pay.example/gw-1"})
	}))
	defer ts.Close()

	c := NewHTTPClient(Config{BaseURL: ts.URL, APIKey: "secret"})
	res, err := c.Initiate(context.Background(), InitiateRequest{Reference: "intent-1", Amount: 42.5, Timing: "ADVANCE"})
	require.NoError(t, err)
	assert.Equal(t, "gw-1", res.Reference)
	assert.Equal(t, "https://pay.example/gw-1", res.RedirectURL)
}

func TestHTTPClient_InitiateError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"message":"card declined"}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(Config{BaseURL: ts.URL})
	_, err := c.Initiate(context.Background(), InitiateRequest{Reference: "x", Amount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card declined")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.Declined())
}

func TestHTTPClient_DeclinesDoNotOpenBreaker(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"insufficient funds"}`))
	}))
	defer ts.Close()

	c := NewHTTPClient(Config{BaseURL: ts.URL, BreakerMaxFailures: 2, BreakerTimeout: time.Minute})
	for i := 0; i < 5; i++ {
		_, err := c.Initiate(context.Background(), InitiateRequest{Reference: "x", Amount: 1})
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
		assert.Contains(t, err.Error(), "insufficient funds")
	}
	assert.Equal(t, 5, calls)
	assert.Equal(t, circuitbreaker.StateClosed, c.cb.State())
}

func TestHTTPClient_CheckStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/gw-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"SUCCEEDED"}`))
	}))
	defer ts.Close()

	status, err := NewHTTPClient(Config{BaseURL: ts.URL}).CheckStatus(context.Background(), "gw-9")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)
}

func TestHTTPClient_BreakerOpens(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := NewHTTPClient(Config{BaseURL: ts.URL, BreakerMaxFailures: 2, BreakerTimeout: time.Minute})
	for i := 0; i < 2; i++ {
		_, err := c.Initiate(context.Background(), InitiateRequest{Reference: "x", Amount: 1})
		require.Error(t, err)
	}
	_, err := c.Initiate(context.Background(), InitiateRequest{Reference: "x", Amount: 1})
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, calls)
}

func TestHTTPClient_NotConfigured(t *testing.T) {
	_, err := NewHTTPClient(Config{}).CheckStatus(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
