// internal/common/validation/validation.go
package validation

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ValidationError describes a single failed field check.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// IsUUID reports whether s is a canonical 36-character hyphenated UUID.
// Fallback/sample catalog ids ("abc", "demo-program-1") fail this check.
func IsUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IsEmail performs a shape check only; deliverability is the mail provider's
// problem.
func IsEmail(s string) bool {
	return emailRe.MatchString(s)
}

// Required collects an error for every named value that is blank.
func Required(fields map[string]string) []ValidationError {
	var errs []ValidationError
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, ValidationError{
				Field:   name,
				Message: "required field missing",
				Code:    "REQUIRED_FIELD_MISSING",
			})
		}
	}
	return errs
}
