package adapter

import (
	"errors"
	"fmt"

	"github.com/altic/readr/internal/chat"
)

// ErrMissingCredential is wrapped by ConfigurationError when no usable
// credential was supplied.
var ErrMissingCredential = errors.New("missing credential")

// ErrUnknownProvider is wrapped by ConfigurationError when no adapter is
// registered for the requested provider.
var ErrUnknownProvider = errors.New("unknown provider")

// ConfigurationError is reported before any network attempt and is never retried.
type ConfigurationError struct {
	Provider chat.Provider
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration: %v", e.Provider, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// EncodingError means the request body could not be serialised.
type EncodingError struct {
	Provider chat.Provider
	Err      error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s: encode request: %v", e.Provider, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// TransportError covers dial, TLS, DNS, read failures and non-2xx responses.
// StatusCode is zero when no response was received.
type TransportError struct {
	Provider   chat.Provider
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: http %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d", e.Provider, e.StatusCode)
	default:
		return fmt.Sprintf("%s: transport: %v", e.Provider, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a single malformed event. It is recovered locally.
type DecodeError struct {
	Provider chat.Provider
	Payload  string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decode event: %v", e.Provider, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError truncates the payload kept for diagnostics.
func NewDecodeError(p chat.Provider, payload []byte, err error) *DecodeError {
	const max = 256
	s := string(payload)
	if len(s) > max {
		s = s[:max]
	}
	return &DecodeError{Provider: p, Payload: s, Err: err}
}
