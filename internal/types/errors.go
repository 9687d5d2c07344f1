package types

import "fmt"

// ErrorCode is the tagged error taxonomy every public operation returns
// instead of panicking across a tool boundary.
type ErrorCode string

const (
	ErrValidation        ErrorCode = "VALIDATION_ERROR"
	ErrNotFound          ErrorCode = "RESOURCE_NOT_FOUND"
	ErrDatabase          ErrorCode = "DATABASE_ERROR"
	ErrConflict          ErrorCode = "CONFLICT_ERROR"
	ErrDependency        ErrorCode = "DEPENDENCY_ERROR"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrGateNotSatisfied  ErrorCode = "GATE_NOT_SATISFIED"
	ErrDependencyBlocked ErrorCode = "DEPENDENCY_BLOCKED"
	ErrOperationFailed   ErrorCode = "OPERATION_FAILED"
	ErrInternal          ErrorCode = "INTERNAL_ERROR"
)

// Error is the error value carried across every package boundary. It
// never crosses a tool boundary as a panic; Code selects the response
// envelope's error.code.
type Error struct {
	Code           ErrorCode
	Msg            string
	Details        string
	AdditionalData map[string]any
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Msg, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// NewError builds an Error with the given code and formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// WithDetails attaches a details string and returns e for chaining.
func (e *Error) WithDetails(format string, args ...any) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// WithData attaches a single additional-data key/value and returns e.
func (e *Error) WithData(key string, value any) *Error {
	if e.AdditionalData == nil {
		e.AdditionalData = map[string]any{}
	}
	e.AdditionalData[key] = value
	return e
}

// NotFound builds a RESOURCE_NOT_FOUND error for the given kind/id.
func NotFound(kind, id string) *Error {
	return NewError(ErrNotFound, "%s not found: %s", kind, id)
}

// Validation builds a VALIDATION_ERROR with the given message.
func Validation(format string, args ...any) *Error {
	return NewError(ErrValidation, format, args...)
}

// CodeOf extracts the ErrorCode from err, defaulting to INTERNAL_ERROR
// for an error value that isn't one of ours.
func CodeOf(err error) ErrorCode {
	var e *Error
	if as(err, &e) {
		return e.Code
	}
	return ErrInternal
}

// as is a tiny local errors.As to avoid importing "errors" just for this.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
