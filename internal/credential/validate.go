package credential

import (
	"fmt"
	"regexp"
)

// Exclusive length bounds for an API key.
const (
	minKeyLength = 10
	maxKeyLength = 200
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidationError describes a malformed API key. It never carries the key itself.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "invalid API key format"
	}
	return fmt.Sprintf("invalid API key format: %s", e.Reason)
}

// IsValid reports whether key is well formed: strictly longer than 10 and
// shorter than 200 characters, built only from letters, digits, '_' and '-'.
func IsValid(key string) bool {
	return Validate(key) == nil
}

// Validate is IsValid with a reason attached.
func Validate(key string) error {
	switch {
	case key == "":
		return &ValidationError{Reason: "empty"}
	case len(key) <= minKeyLength:
		return &ValidationError{Reason: "too short"}
	case len(key) >= maxKeyLength:
		return &ValidationError{Reason: "too long"}
	case !keyPattern.MatchString(key):
		return &ValidationError{Reason: "unexpected characters"}
	}
	return nil
}
