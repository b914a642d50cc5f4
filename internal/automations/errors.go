package automations

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/micro-ha/deck-automations/plugin/internal/credential"
)

// ErrorKind classifies a failed service call.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindConnection   ErrorKind = "connection"
	KindOther        ErrorKind = "other"
)

// ServiceError is the outcome of exactly one failed call to the automation service.
type ServiceError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *ServiceError) Error() string {
	if e == nil {
		return "automation service error"
	}
	switch e.Kind {
	case KindUnauthorized:
		return "automation API rejected the API key (401)"
	case KindForbidden:
		return "automation API denied access (403)"
	case KindConnection:
		return fmt.Sprintf("automation service unreachable: %v", e.Err)
	default:
		if e.Status == 0 {
			return fmt.Sprintf("automation API response invalid: %v", e.Err)
		}
		return fmt.Sprintf("automation API returned status %d", e.Status)
	}
}

func (e *ServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message is the sanitized text shown on the configuration surface.
func (e *ServiceError) Message() string {
	if e == nil {
		return "Unexpected error"
	}
	switch e.Kind {
	case KindUnauthorized:
		return "Invalid API key"
	case KindForbidden:
		return "API key does not have permission"
	case KindConnection:
		return "Could not connect to the automation service"
	default:
		if e.Status == 0 {
			return "Unexpected response from the automation service"
		}
		return fmt.Sprintf("Request failed with status %d", e.Status)
	}
}

// Message maps any error from this package or credential validation to a
// short human-readable string. Raw error text never passes through.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Message()
	}
	var validationErr *credential.ValidationError
	if errors.As(err, &validationErr) {
		return "Invalid API key format"
	}
	return "Unexpected error"
}

func statusError(status int) *ServiceError {
	switch status {
	case http.StatusUnauthorized:
		return &ServiceError{Kind: KindUnauthorized, Status: status}
	case http.StatusForbidden:
		return &ServiceError{Kind: KindForbidden, Status: status}
	default:
		return &ServiceError{Kind: KindOther, Status: status}
	}
}
