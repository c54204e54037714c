// Package apperror defines the failure kinds surfaced to users of the upload
// and analysis flow. Network and parse failures are converted into an *Error
// at the coordinator or HTTP boundary; nothing else reaches the presenter.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error.
type Kind string

const (
	// ConfigurationError: a required server credential is absent.
	ConfigurationError Kind = "configuration_error"
	// ValidationError: unsupported file type or empty file set, caught locally.
	ValidationError Kind = "validation_error"
	// UploadTransportError: network failure or non-2xx from the upload service.
	UploadTransportError Kind = "upload_transport_error"
	// ResolutionEmpty: the upload succeeded but no asset id could be resolved.
	ResolutionEmpty Kind = "resolution_empty"
	// AnalysisFailed: the agent reported failure or returned nothing usable.
	AnalysisFailed Kind = "analysis_failed"
	// NetworkError: transport exception while invoking the agent.
	NetworkError Kind = "network_error"
)

// Error is the single error type for all kinds.
type Error struct {
	Kind    Kind
	Message string
	// Detail carries debugging context (upstream body, observed keys) that is
	// not meant for end users.
	Detail string
	// Status is the HTTP status to answer with, when one applies.
	Status int
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: K}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the user may retry without choosing a new file.
func (e *Error) Retryable() bool {
	return e.Kind == AnalysisFailed || e.Kind == NetworkError
}

// HTTPStatus is the status to answer with for this error.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case ConfigurationError:
		return http.StatusInternalServerError
	case ValidationError:
		return http.StatusBadRequest
	case UploadTransportError, NetworkError:
		return http.StatusBadGateway
	case ResolutionEmpty, AnalysisFailed:
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func Configuration(msg string) *Error {
	return &Error{Kind: ConfigurationError, Message: msg, Status: http.StatusInternalServerError}
}

func Validation(msg string) *Error {
	return &Error{Kind: ValidationError, Message: msg, Status: http.StatusBadRequest}
}

// UploadTransport wraps an upload failure. status is the upstream status, or 0
// when the request never got an answer.
func UploadTransport(msg string, status int, cause error) *Error {
	e := &Error{Kind: UploadTransportError, Message: msg, Status: status, Cause: cause}
	if status == 0 {
		e.Status = http.StatusInternalServerError
	}
	return e
}

func Resolution(msg, detail string) *Error {
	return &Error{Kind: ResolutionEmpty, Message: msg, Detail: detail, Status: http.StatusOK}
}

func Analysis(msg string) *Error {
	return &Error{Kind: AnalysisFailed, Message: msg}
}

func Network(msg string, cause error) *Error {
	return &Error{Kind: NetworkError, Message: msg, Cause: cause}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Retryable reports whether err allows a retry that reuses held asset ids.
func Retryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable()
	}
	return false
}

// Message returns the user-facing text of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Message
	}
	return err.Error()
}
