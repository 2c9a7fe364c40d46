package apperr

import (
	"errors"
	"net/http"
)

// Error kinds. An *Error unwraps to exactly one of these.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInternal          = errors.New("internal error")
)

// FieldError is one entry of a validation failure list.
type FieldError struct {
	Message string `json:"message"`
}

// Error is an application error that carries a status code and, for
// validation failures, the list of failing fields.
type Error struct {
	Kind    error
	Message string
	Code    int
	Data    []FieldError
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// WithCode overrides the status code derived from the kind.
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

func newError(kind error, code int, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Code: code}
}

func InvalidInput(msg string, data []FieldError) *Error {
	e := newError(ErrInvalidInput, http.StatusUnprocessableEntity, msg)
	e.Data = data
	return e
}

func Unauthorized(msg string) *Error {
	return newError(ErrUnauthorized, http.StatusUnauthorized, msg)
}

func InvalidCredential(msg string) *Error {
	return newError(ErrInvalidCredential, http.StatusUnauthorized, msg)
}

func Forbidden(msg string) *Error {
	return newError(ErrForbidden, http.StatusForbidden, msg)
}

func NotFound(msg string) *Error {
	return newError(ErrNotFound, http.StatusNotFound, msg)
}

// AlreadyExists is reported with a generic 500, there is no dedicated
// conflict status in the API contract.
func AlreadyExists(msg string) *Error {
	return newError(ErrAlreadyExists, http.StatusInternalServerError, msg)
}

func Internal(msg string) *Error {
	return newError(ErrInternal, http.StatusInternalServerError, msg)
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Status returns the status code carried by err, or 500.
func Status(err error) int {
	if appErr, ok := As(err); ok && appErr.Code != 0 {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// Fields collects validation failures without short-circuiting.
type Fields []FieldError

func (f *Fields) Add(msg string) {
	*f = append(*f, FieldError{Message: msg})
}

func (f Fields) HasErrors() bool {
	return len(f) > 0
}

// Err returns an InvalidInput error listing every collected failure, or nil.
func (f Fields) Err() error {
	if !f.HasErrors() {
		return nil
	}
	return InvalidInput("Invalid input", []FieldError(f))
}
