package run

import "fmt"

// Error is the typed error shape shared across the core packages, mirroring
// the engine's EngineError{Message, Code} pattern so callers can switch on
// Code without parsing strings.
type Error struct {
	Message string
	Code    string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError constructs an *Error with the given code.
func NewError(code, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Code: code}
}

// Error codes for Run-level failures.
const (
	CodeDomainValidation = "domain_validation"
	CodeNotFound         = "not_found"
)

// IsNotFound reports whether err is a not-found Error.
func IsNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Code == CodeNotFound
}
