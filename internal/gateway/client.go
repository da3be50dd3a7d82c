// Package gateway is the client for the external payment provider.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jwalitptl/homecare-api/pkg/circuitbreaker"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// ErrNotConfigured is returned when no gateway URL is set.
var ErrNotConfigured = errors.New("payment gateway is not configured")

type InitiateRequest struct {
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
	ReturnURL string  `json:"return_url,omitempty"`
	Timing    string  `json:"timing"`
}

type InitiateResult struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

// Client is the initiate/check-status contract of the payment provider.
type Client interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	CheckStatus(ctx context.Context, reference string) (Status, error)
}

type Config struct {
	BaseURL            string
	APIKey             string
	Timeout            time.Duration
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "payment-gateway",
			MaxFailures: cfg.BreakerMaxFailures,
			Timeout:     cfg.BreakerTimeout,
		}),
	}
}

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Code, e.Message)
}

// Declined reports whether the gateway refused this request (4xx), as opposed
// to failing to serve it.
func (e *StatusError) Declined() bool {
	return e.Code >= 400 && e.Code < 500
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *HTTPClient) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	var result InitiateResult
	if err := c.do(ctx, http.MethodPost, "/payments", body, &result); err != nil {
		return nil, err
	}
	if result.Reference == "" {
		return nil, errors.New("gateway response has no payment reference")
	}
	return &result, nil
}

func (c *HTTPClient) CheckStatus(ctx context.Context, reference string) (Status, error) {
	var result struct {
		Status Status `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(reference), nil, &result); err != nil {
		return "", err
	}
	switch result.Status {
	case StatusPending, StatusSucceeded, StatusFailed:
		return result.Status, nil
	}
	return "", fmt.Errorf("gateway returned unknown status %q", result.Status)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	// Declines are answers, so they are returned without tripping the breaker.
	var declined error
	err := c.cb.Execute(func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to build gateway request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("gateway request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("failed to read gateway response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var eb errorBody
			_ = json.Unmarshal(data, &eb)
			msg := eb.Message
			if msg == "" {
				msg = eb.Error
			}
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			statusErr := &StatusError{Code: resp.StatusCode, Message: msg}
			if statusErr.Declined() {
				declined = statusErr
				return nil
			}
			return statusErr
		}

		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode gateway response: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return declined
}
