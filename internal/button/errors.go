package button

import (
	"errors"
	"strings"

	"github.com/micro-ha/deck-automations/plugin/internal/automations"
	"github.com/micro-ha/deck-automations/plugin/internal/credential"
)

// ErrorKind is the closed set of failure classes a key can display.
type ErrorKind string

const (
	ErrorKindAPI     ErrorKind = "api_error"
	ErrorKindGeneric ErrorKind = "failed"
)

// Classify reduces a trigger failure to a display class. Service errors carry
// their own kind; anything else counts as an API error when its text mentions
// "API".
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var serviceErr *automations.ServiceError
	if errors.As(err, &serviceErr) {
		if serviceErr.Kind == automations.KindConnection {
			return ErrorKindGeneric
		}
		return ErrorKindAPI
	}
	var validationErr *credential.ValidationError
	if errors.As(err, &validationErr) {
		return ErrorKindAPI
	}
	if strings.Contains(err.Error(), "API") {
		return ErrorKindAPI
	}
	return ErrorKindGeneric
}

// Label is the short text shown under "Error".
func Label(kind ErrorKind) string {
	if kind == ErrorKindAPI {
		return "API Error"
	}
	return "Failed"
}
