package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures so callers can tell "fix your input" apart
// from "you lack permission" and "re-fetch and retry".
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindConflict
	KindDependency
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "notfound"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	}
	return "internal"
}

// Status maps the kind to the HTTP status used in error envelopes.
func (k ErrorKind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthorization:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type CustomError struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Type    string    `json:"type"`
	Kind    ErrorKind `json:"-"`
	Err     error     `json:"-"`
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s [type: %s]: %v", e.Code, e.Message, e.Type, e.Err)
	}
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

func (e *CustomError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, errorType string, err error, format string, args ...any) *CustomError {
	return &CustomError{
		Code:    kind.Status(),
		Message: fmt.Sprintf(format, args...),
		Type:    errorType,
		Kind:    kind,
		Err:     err,
	}
}

func NewValidationError(errorType, format string, args ...any) *CustomError {
	return newError(KindValidation, errorType, nil, format, args...)
}

// NewNotFoundError reports an unresolvable reference. It is a validation
// failure surfaced with its own status.
func NewNotFoundError(errorType, format string, args ...any) *CustomError {
	return newError(KindNotFound, errorType, nil, format, args...)
}

func NewAuthorizationError(errorType, format string, args ...any) *CustomError {
	return newError(KindAuthorization, errorType, nil, format, args...)
}

func NewConflictError(errorType, format string, args ...any) *CustomError {
	return newError(KindConflict, errorType, nil, format, args...)
}

// NewDependencyError wraps a storage or artifact failure.
func NewDependencyError(errorType string, err error) *CustomError {
	return newError(KindDependency, errorType, err, "%s failed", errorType)
}

// KindOf returns the kind of the first CustomError in err's chain.
func KindOf(err error) ErrorKind {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
