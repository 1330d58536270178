package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthRequired signals that no usable user credential exists and the
// caller must complete the authorization flow before retrying.
var ErrAuthRequired = errors.New("authorization required")

// ValidationError reports user-correctable bad input, such as an unknown
// genre name.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// RemoteError reports an unexpected status or malformed payload from the
// Spotify API. Details carries the upstream error payload verbatim so it can
// be passed through to the client unchanged.
type RemoteError struct {
	Status  int
	Msg     string
	Details json.RawMessage
}

func (e *RemoteError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Msg, e.Status, e.Details)
	}
	return fmt.Sprintf("%s (status %d)", e.Msg, e.Status)
}

// NewRemoteError creates a RemoteError without an upstream payload. The
// status defaults to 502 Bad Gateway when none is given.
func NewRemoteError(status int, format string, args ...any) *RemoteError {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return &RemoteError{Status: status, Msg: fmt.Sprintf(format, args...)}
}

// ConfigError reports missing or invalid startup configuration. It is fatal:
// the process refuses to start.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}
