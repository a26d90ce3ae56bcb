package api

import (
	"errors"
	"fmt"
)

var (
	// ErrCanceled is returned when the caller cancels an in-flight stream.
	// Errors carrying it also match context.Canceled.
	ErrCanceled = errors.New("stream canceled")

	// ErrNonStreamingDeprecated is returned by every non-streaming code path.
	ErrNonStreamingDeprecated = errors.New("non-streaming requests are deprecated, use the streaming API")

	// ErrUnsupportedProvider is wrapped by a ConfigurationError when the stored
	// provider has no registered implementation.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingCredential is wrapped by a ConfigurationError when the key the
	// selected provider needs is empty.
	ErrMissingCredential = errors.New("missing credential")
)

// ConfigurationError reports settings that prevent a request from starting.
// It is always raised before any network I/O and should not be retried.
type ConfigurationError struct {
	Provider ProviderID
	// Field is the settings key at fault, e.g. "apiKey" or "arkApiKey".
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Field != "" && e.Provider != "":
		return fmt.Sprintf("configuration error: %s (%s) for provider %q", e.Err, e.Field, e.Provider)
	case e.Field != "":
		return fmt.Sprintf("configuration error: %s (%s)", e.Err, e.Field)
	case e.Provider != "":
		return fmt.Sprintf("configuration error: %s: %q", e.Err, e.Provider)
	}
	return fmt.Sprintf("configuration error: %s", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TransportError reports a failed exchange with the upstream provider: either a
// non-2xx status (StatusCode set) or a connection failure (Err set).
type TransportError struct {
	StatusCode int
	URL        string
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream error: status %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("upstream error: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Canceled wraps cause so that the result matches both ErrCanceled and cause.
func Canceled(cause error) error {
	if cause == nil {
		return ErrCanceled
	}
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}
