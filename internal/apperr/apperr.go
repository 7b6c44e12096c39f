package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping
type Kind string

const (
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindAuthenticity  Kind = "authenticity"
	KindUpstream      Kind = "upstream"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindUnauthorized  Kind = "unauthorized"
	KindForbidden     Kind = "forbidden"
	KindRateLimited   Kind = "rate_limited"
	KindUnavailable   Kind = "unavailable"
	KindInternal      Kind = "internal"
)

// Generic messages for kinds whose details must not reach the caller
const (
	MsgPaymentNotConfigured = "payment is not configured for this store"
	MsgVerificationFailed   = "payment verification failed"
	MsgInternal             = "something went wrong, please try again later"
)

// AppError is the error type returned by services and rendered by the HTTP error handler
type AppError struct {
	Kind      Kind
	PublicMsg string
	Fields    map[string]string
	Err       error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.PublicMsg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.PublicMsg)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by kind so errors.Is(err, &AppError{Kind: KindConflict}) works
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.PublicMsg == "" || t.PublicMsg == e.PublicMsg)
}

func newErr(kind Kind, msg string, err error) *AppError {
	return &AppError{Kind: kind, PublicMsg: msg, Err: err}
}

func Validation(msg string) *AppError {
	return newErr(KindValidation, msg, nil)
}

// ValidationFields builds a validation error carrying per-field messages
func ValidationFields(msg string, fields map[string]string) *AppError {
	e := newErr(KindValidation, msg, nil)
	e.Fields = fields
	return e
}

// Configuration never exposes the cause; err is kept for logs only
func Configuration(err error) *AppError {
	return newErr(KindConfiguration, MsgPaymentNotConfigured, err)
}

// ConfigurationMsg is a configuration error with a caller-facing message that is safe to show
func ConfigurationMsg(msg string) *AppError {
	return newErr(KindConfiguration, msg, nil)
}

// Authenticity always carries the same generic message
func Authenticity(err error) *AppError {
	return newErr(KindAuthenticity, MsgVerificationFailed, err)
}

func Upstream(msg string, err error) *AppError {
	return newErr(KindUpstream, msg, err)
}

func NotFound(msg string) *AppError {
	return newErr(KindNotFound, msg, nil)
}

func Conflict(msg string) *AppError {
	return newErr(KindConflict, msg, nil)
}

func Unauthorized(msg string) *AppError {
	return newErr(KindUnauthorized, msg, nil)
}

func Forbidden(msg string) *AppError {
	return newErr(KindForbidden, msg, nil)
}

func RateLimited() *AppError {
	return newErr(KindRateLimited, "too many requests, please slow down", nil)
}

func Unavailable(msg string) *AppError {
	return newErr(KindUnavailable, msg, nil)
}

func Internal(err error) *AppError {
	return newErr(KindInternal, MsgInternal, err)
}

// As extracts an *AppError from an error chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps a kind to the response status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindConfiguration, KindAuthenticity:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that may be shown to a caller
func PublicMessage(err error) string {
	appErr, ok := As(err)
	if !ok || appErr.PublicMsg == "" {
		return MsgInternal
	}
	return appErr.PublicMsg
}
