package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error. Kinds are part of the API contract
// and are rendered verbatim as error_kind.
type Kind string

const (
	KindInvalidTransition       Kind = "InvalidTransition"
	KindNotAssigned             Kind = "NotAssigned"
	KindProviderNotQualified    Kind = "ProviderNotQualified"
	KindProviderUnavailable     Kind = "ProviderUnavailable"
	KindDuplicateRequest        Kind = "DuplicateRequest"
	KindDuplicatePending        Kind = "DuplicatePending"
	KindAlreadyResolved         Kind = "AlreadyResolved"
	KindAlreadyRevoked          Kind = "AlreadyRevoked"
	KindConsentRequired         Kind = "ConsentRequired"
	KindPaymentInitiationFailed Kind = "PaymentInitiationFailed"
	KindInvalidSchedule         Kind = "InvalidSchedule"
	KindInvalidRequest          Kind = "InvalidRequest"
	KindNotFound                Kind = "NotFound"
	KindForbidden               Kind = "Forbidden"
	KindUnauthorized            Kind = "Unauthorized"
	KindInternal                Kind = "Internal"
)

var statusByKind = map[Kind]int{
	KindInvalidTransition:       http.StatusConflict,
	KindNotAssigned:             http.StatusForbidden,
	KindProviderNotQualified:    http.StatusUnprocessableEntity,
	KindProviderUnavailable:     http.StatusConflict,
	KindDuplicateRequest:        http.StatusConflict,
	KindDuplicatePending:        http.StatusConflict,
	KindAlreadyResolved:         http.StatusConflict,
	KindAlreadyRevoked:          http.StatusConflict,
	KindConsentRequired:         http.StatusPreconditionFailed,
	KindPaymentInitiationFailed: http.StatusBadGateway,
	KindInvalidSchedule:         http.StatusUnprocessableEntity,
	KindInvalidRequest:          http.StatusBadRequest,
	KindNotFound:                http.StatusNotFound,
	KindForbidden:               http.StatusForbidden,
	KindUnauthorized:            http.StatusUnauthorized,
	KindInternal:                http.StatusInternalServerError,
}

// AppError represents an application error
type AppError struct {
	Kind    Kind                   `json:"error_kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status the error is rendered with.
func (e *AppError) StatusCode() int {
	if code, ok := statusByKind[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// WithDetail returns the error with an extra detail attached.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries an AppError of the given kind.
func Is(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// KindOf returns the kind of err, KindInternal for non-application errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

func InvalidTransition(entity, from, to string) *AppError {
	return New(KindInvalidTransition, fmt.Sprintf("%s cannot move from %s to %s", entity, from, to)).
		WithDetail("current_status", from).
		WithDetail("requested_status", to)
}

func NotAssigned(message string) *AppError {
	return New(KindNotAssigned, message)
}

func ProviderNotQualified(providerID, serviceID fmt.Stringer) *AppError {
	return New(KindProviderNotQualified, "provider does not offer the booked service").
		WithDetail("provider_id", providerID.String()).
		WithDetail("service_id", serviceID.String())
}

func ProviderUnavailable(providerID fmt.Stringer) *AppError {
	return New(KindProviderUnavailable, "provider is not currently available").
		WithDetail("provider_id", providerID.String())
}

func DuplicateRequest(message string) *AppError {
	return New(KindDuplicateRequest, message)
}

func DuplicatePending(message string) *AppError {
	return New(KindDuplicatePending, message)
}

func AlreadyResolved(entity, status string) *AppError {
	return New(KindAlreadyResolved, fmt.Sprintf("%s is already %s", entity, status)).
		WithDetail("current_status", status)
}

func AlreadyRevoked(message string) *AppError {
	return New(KindAlreadyRevoked, message)
}

// ConsentRequired lists every consent type that still needs acceptance.
func ConsentRequired(missing []string) *AppError {
	return New(KindConsentRequired, fmt.Sprintf("%d required consent(s) not accepted", len(missing))).
		WithDetail("missing", missing)
}

func PaymentInitiationFailed(reason string, err error) *AppError {
	return &AppError{
		Kind:    KindPaymentInitiationFailed,
		Message: reason,
		Err:     err,
	}
}

func InvalidSchedule(message string) *AppError {
	return New(KindInvalidSchedule, message)
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Kind:    KindInvalidRequest,
		Message: message,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return New(KindForbidden, message)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Kind:    KindUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Message: "internal server error",
		Err:     err,
	}
}
