package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for the transport boundary. The set is closed;
// handlers map codes to HTTP statuses or socket error events without
// inspecting messages.
type Code string

const (
	CodeValidation      Code = "VALIDATION"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeExpired         Code = "EXPIRED"
	CodeInternal        Code = "INTERNAL"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

func Validation(msg string) error      { return New(CodeValidation, msg) }
func Unauthenticated(msg string) error { return New(CodeUnauthenticated, msg) }
func Forbidden(msg string) error       { return New(CodeForbidden, msg) }
func NotFound(msg string) error        { return New(CodeNotFound, msg) }
func Conflict(msg string) error        { return New(CodeConflict, msg) }
func Expired(msg string) error         { return New(CodeExpired, msg) }
func Internal(msg string) error        { return New(CodeInternal, msg) }

// CodeOf returns the code of err, or CodeInternal for anything outside the
// taxonomy.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error to the status the REST boundary responds with.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation, CodeExpired:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage returns the message safe to surface to a client. Internal
// errors are masked.
func UserMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != CodeInternal {
		return ae.Message
	}
	return "internal server error"
}
