package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nulzo/streamchat/pkg/api"
)

// maxErrorBody caps how much of a non-2xx response body is kept for diagnostics.
const maxErrorBody = 64 << 10

// HTTPClient defines the interface for an HTTP client
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Open sends a JSON POST that expects an event stream back and returns once the
// response headers have arrived. A non-2xx status is returned as an
// *api.TransportError and the body is released before returning.
func Open(ctx context.Context, client HTTPClient, url string, headers map[string]string, body interface{}, opts ...Option) (*EventStream, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, failure(ctx, url, fmt.Errorf("stream request failed: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, &api.TransportError{
			StatusCode: resp.StatusCode,
			Body:       respBody,
			URL:        url,
		}
	}

	return NewEventStream(url, resp.Body, opts...), nil
}

// StreamRequest opens the stream and consumes it until the sentinel, EOF,
// an error, or cancellation.
func StreamRequest(ctx context.Context, client HTTPClient, url string, headers map[string]string, body interface{}, parse ParseFunc, emit EmitFunc, opts ...Option) error {
	stream, err := Open(ctx, client, url, headers, body, opts...)
	if err != nil {
		return err
	}
	return stream.Each(ctx, parse, emit)
}

// failure classifies err. Caller cancellation wins over whatever the
// underlying transport reported.
func failure(ctx context.Context, url string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.Canceled) {
			return api.Canceled(ctxErr)
		}
		return &api.TransportError{URL: url, Err: ctxErr}
	}
	return &api.TransportError{URL: url, Err: err}
}
