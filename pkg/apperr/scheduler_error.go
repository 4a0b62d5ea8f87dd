package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeForbidden    = "FORBIDDEN"

	// Validation errors
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeMissingField     = "MISSING_FIELD"

	// Resource errors
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// External errors
	CodeRemoteUnavailable = "REMOTE_UNAVAILABLE"
	CodeModelUnavailable  = "MODEL_UNAVAILABLE"
	CodeDatabaseError     = "DATABASE_ERROR"

	// Agent errors
	CodePlanTooLong = "PLAN_TOO_LONG"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeRateLimited   = "RATE_LIMITED"
)

// User-facing messages, one per failure class.
const (
	MsgSlotTaken        = "That time slot is already booked. Please choose another time."
	MsgNotOwner         = "You do not have permission to modify this event."
	MsgEventNotFound    = "Event not found."
	MsgPlanTooLong      = "This request needed too many steps to complete. Please try a simpler request."
	MsgModelUnavailable = "The assistant is temporarily unavailable. Please try again shortly."
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on Code so errors.Is(err, apperr.ErrConflict) works for any conflict.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Auth errors
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func InvalidToken(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidToken,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// Forbidden is the PermissionError class: a caller mutating a booking they do not own.
func Forbidden(message string) *AppError {
	if message == "" {
		message = MsgNotOwner
	}
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

// ValidationFailed is the ValidationError class: bad date, time or timezone input.
func ValidationFailed(message string) *AppError {
	return &AppError{
		Code:    CodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeValidationFailed,
		Message: fmt.Sprintf("invalid value for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// NotFound is the NotFoundError class.
func NotFound(resource string) *AppError {
	msg := MsgEventNotFound
	if resource != "" && resource != "event" {
		msg = fmt.Sprintf("%s not found", resource)
	}
	return &AppError{
		Code:    CodeNotFound,
		Message: msg,
		Status:  http.StatusNotFound,
	}
}

// Conflict is the ConflictError class. Both the overlap pre-check and the
// store's uniqueness rejection surface through it with the same message.
func Conflict(err error) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: MsgSlotTaken,
		Status:  http.StatusConflict,
		Err:     err,
	}
}

// RemoteUnavailable is the RemoteServiceError class.
func RemoteUnavailable(service, action string, err error) *AppError {
	msg := fmt.Sprintf("The %s service is unavailable", service)
	if action != "" {
		msg += ": " + action
	}
	return &AppError{
		Code:    CodeRemoteUnavailable,
		Message: msg,
		Status:  http.StatusServiceUnavailable,
		Details: map[string]any{"service": service},
		Err:     err,
	}
}

// ModelUnavailable is a loop-level failure talking to the language model.
func ModelUnavailable(err error) *AppError {
	return &AppError{
		Code:    CodeModelUnavailable,
		Message: MsgModelUnavailable,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// PlanTooLong reports that the agent loop hit its step ceiling.
func PlanTooLong(limit int) *AppError {
	return &AppError{
		Code:    CodePlanTooLong,
		Message: MsgPlanTooLong,
		Status:  http.StatusUnprocessableEntity,
		Details: map[string]any{"limit": limit},
	}
}

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func RateLimited(retryAfter int) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Message: "too many requests",
		Status:  http.StatusTooManyRequests,
		Details: map[string]any{"retry_after": retryAfter},
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// Sentinels for errors.Is. Only Code is compared.
var (
	ErrNotFound          = &AppError{Code: CodeNotFound}
	ErrForbidden         = &AppError{Code: CodeForbidden}
	ErrConflict          = &AppError{Code: CodeConflict}
	ErrValidation        = &AppError{Code: CodeValidationFailed}
	ErrRemoteUnavailable = &AppError{Code: CodeRemoteUnavailable}
	ErrPlanTooLong       = &AppError{Code: CodePlanTooLong}
	ErrModelUnavailable  = &AppError{Code: CodeModelUnavailable}
	ErrRateLimited       = &AppError{Code: CodeRateLimited}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// UserMessage renders err as text safe to show the model or the user.
// Internal and database failures collapse to a generic sentence.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "An unexpected error occurred."
	}
	switch appErr.Code {
	case CodeInternalError, CodeDatabaseError, CodeConfigError:
		return "An unexpected error occurred."
	}
	return appErr.Message
}
