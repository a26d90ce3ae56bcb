package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// StatusClientClosedRequest is the non-standard status used when the client
// went away before the stream finished.
const StatusClientClosedRequest = 499

// Problem implements RFC 9457.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`

	Log error `json:"-"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

func (p *Problem) MarshalJSON() ([]byte, error) {
	type Alias Problem

	data := make(map[string]interface{})
	for k, v := range p.Extensions {
		data[k] = v
	}

	stdJSON, err := json.Marshal(Alias(*p))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(stdJSON, &data); err != nil {
		return nil, err
	}

	return json.Marshal(data)
}

type ProblemOption func(*Problem)

// NewProblem creates a generic Problem.
func NewProblem(status int, title, detail string, opts ...ProblemOption) *Problem {
	p := &Problem{
		Type:       "about:blank",
		Title:      title,
		Status:     status,
		Detail:     detail,
		Extensions: make(map[string]interface{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithExtension adds a custom member to the problem document.
func WithExtension(key string, value interface{}) ProblemOption {
	return func(p *Problem) {
		p.Extensions[key] = value
	}
}

// WithLog attaches an internal error for server-side logging only.
func WithLog(err error) ProblemOption {
	return func(p *Problem) {
		p.Log = err
	}
}

// ValidationProblem reports request body validation failures.
func ValidationProblem(fields map[string]string) *Problem {
	return NewProblem(
		http.StatusBadRequest,
		"Validation Error",
		"One or more fields failed validation",
		WithExtension("errors", fields),
	)
}

// ProblemFromError maps stream client errors onto HTTP problem documents.
func ProblemFromError(err error) *Problem {
	var problem *Problem
	if errors.As(err, &problem) {
		return problem
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		opts := []ProblemOption{WithLog(err)}
		if cfgErr.Field != "" {
			opts = append(opts, WithExtension("field", cfgErr.Field))
		}
		if cfgErr.Provider != "" {
			opts = append(opts, WithExtension("provider", cfgErr.Provider))
		}
		return NewProblem(http.StatusBadRequest, "Configuration Error", cfgErr.Error(), opts...)
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		opts := []ProblemOption{WithLog(err)}
		if transportErr.StatusCode != 0 {
			opts = append(opts, WithExtension("upstream_status", transportErr.StatusCode))
		}
		return NewProblem(http.StatusBadGateway, "Upstream Provider Error", transportErr.Error(), opts...)
	}

	if errors.Is(err, ErrCanceled) {
		return NewProblem(StatusClientClosedRequest, "Client Closed Request", err.Error())
	}

	if errors.Is(err, ErrNonStreamingDeprecated) {
		return NewProblem(http.StatusGone, "Deprecated", err.Error())
	}

	return NewProblem(http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred.", WithLog(err))
}
