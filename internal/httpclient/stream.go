package httpclient

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

const defaultReadSize = 4096

// ParseFunc extracts a text fragment from one frame payload. An error means the
// payload could not be decoded; the frame is skipped. An empty fragment means
// the frame carried no text.
type ParseFunc func(payload []byte) (string, error)

// EmitFunc receives each non-empty fragment, in arrival order.
type EmitFunc func(fragment string)

type Option func(*EventStream)

// WithLogger sets the logger used for skipped frames.
func WithLogger(logger *zap.Logger) Option {
	return func(s *EventStream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReadSize sets the size of each body read.
func WithReadSize(n int) Option {
	return func(s *EventStream) {
		if n > 0 {
			s.readSize = n
		}
	}
}

// EventStream is an open streaming response. It is consumed once by Each.
type EventStream struct {
	url      string
	body     io.ReadCloser
	logger   *zap.Logger
	readSize int

	closeOnce sync.Once
	closeErr  error
}

func NewEventStream(url string, body io.ReadCloser, opts ...Option) *EventStream {
	s := &EventStream{
		url:      url,
		body:     body,
		logger:   zap.NewNop(),
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the response body. It is safe to call more than once; the
// body is closed exactly once.
func (s *EventStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// Each reads the body incrementally and calls emit for every fragment parse
// extracts, synchronously and before the next read. It returns nil when the
// [DONE] sentinel is seen or the body ends. Once ctx is cancelled no further
// fragment is emitted. The body is closed before Each returns.
func (s *EventStream) Each(ctx context.Context, parse ParseFunc, emit EmitFunc) error {
	defer func() {
		_ = s.Close()
	}()

	var (
		frames frameBuffer
		done   bool
		chunk  = make([]byte, s.readSize)
	)

	handle := func(line []byte) bool {
		payload, ok := framePayload(line)
		if !ok {
			return true
		}
		if string(payload) == doneSentinel {
			done = true
			return false
		}

		fragment, err := parse(payload)
		if err != nil {
			s.logger.Debug("Skipping malformed stream frame",
				zap.String("url", s.url),
				zap.ByteString("payload", payload),
				zap.Error(err),
			)
			return true
		}
		if fragment == "" {
			return true
		}

		if ctx.Err() != nil {
			return false
		}
		emit(fragment)
		return true
	}

	for {
		if ctx.Err() != nil {
			break
		}

		n, readErr := s.body.Read(chunk)
		if n > 0 && !frames.feed(chunk[:n], handle) {
			break
		}
		if readErr == io.EOF {
			frames.flush(handle)
			break
		}
		if readErr != nil {
			return failure(ctx, s.url, fmt.Errorf("reading stream: %w", readErr))
		}
	}

	if done {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return failure(ctx, s.url, err)
	}
	return nil
}
