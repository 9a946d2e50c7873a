package errors

import "net/http"

// Domain error codes. The zero code means "internal".
const (
	CodeValidation = 1000 + iota
	CodeInvalidTransition
	CodeNotFound
	CodeUnauthorized
	CodeTransientDependency
	CodeConflict
)

// Validation reports malformed or out-of-range input.
func Validation(format string, args ...interface{}) *Error {
	return WithCodef(CodeValidation, format, args...)
}

// InvalidTransition reports a state change that is not allowed from the
// current state.
func InvalidTransition(format string, args ...interface{}) *Error {
	return WithCodef(CodeInvalidTransition, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return WithCodef(CodeNotFound, format, args...)
}

// Unauthorized covers both missing identity and wrong role or ownership.
func Unauthorized(format string, args ...interface{}) *Error {
	return WithCodef(CodeUnauthorized, format, args...)
}

// Transient wraps a failure of an external collaborator (planner, SMS
// gateway, cache) that may succeed on retry.
func Transient(err error, format string, args ...interface{}) *Error {
	e := Wrapf(err, format, args...)
	if e == nil {
		e = WithCodef(CodeTransientDependency, format, args...)
	}
	e.Code = CodeTransientDependency
	return e
}

func Conflict(format string, args ...interface{}) *Error {
	return WithCodef(CodeConflict, format, args...)
}

func IsValidation(err error) bool        { return GetCode(err) == CodeValidation }
func IsInvalidTransition(err error) bool { return GetCode(err) == CodeInvalidTransition }
func IsNotFound(err error) bool          { return GetCode(err) == CodeNotFound }
func IsUnauthorized(err error) bool      { return GetCode(err) == CodeUnauthorized }
func IsTransient(err error) bool         { return GetCode(err) == CodeTransientDependency }
func IsConflict(err error) bool          { return GetCode(err) == CodeConflict }

// HTTPStatus maps an error to the status code the HTTP layer answers with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch GetCode(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInvalidTransition, CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeTransientDependency:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
