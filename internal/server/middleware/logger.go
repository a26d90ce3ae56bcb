package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerOption func(*requestLogger)

// WithSkipPaths stops successful requests to paths from being logged. Failed
// requests are always logged.
func WithSkipPaths(paths ...string) LoggerOption {
	return func(l *requestLogger) {
		for _, p := range paths {
			l.skip[p] = struct{}{}
		}
	}
}

// WithStreamPaths marks routes that answer with SSE; they are logged as
// "Stream closed" once the response ends.
func WithStreamPaths(paths ...string) LoggerOption {
	return func(l *requestLogger) {
		for _, p := range paths {
			l.streams[p] = struct{}{}
		}
	}
}

type requestLogger struct {
	logger  *zap.Logger
	skip    map[string]struct{}
	streams map[string]struct{}
}

// Logger logs one line per request with zap, at a level chosen by status.
func Logger(logger *zap.Logger, opts ...LoggerOption) gin.HandlerFunc {
	l := &requestLogger{
		logger:  logger,
		skip:    make(map[string]struct{}),
		streams: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l.handle
}

func (l *requestLogger) handle(c *gin.Context) {
	start := time.Now()
	c.Next()

	status := c.Writer.Status()
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	if _, ok := l.skip[route]; ok && status < 400 {
		return
	}

	msg := "Incoming Request"
	if _, ok := l.streams[route]; ok {
		msg = "Stream closed"
	}

	ce := l.logger.Check(levelFor(status), msg)
	if ce == nil {
		return
	}

	path := c.Request.URL.Path
	if raw := c.Request.URL.RawQuery; raw != "" {
		path += "?" + raw
	}
	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("method", c.Request.Method),
		zap.String("path", path),
		zap.String("ip", c.ClientIP()),
		zap.String("request_id", c.GetString(RequestIDKey)),
		zap.Duration("latency", time.Since(start)),
		zap.Int("bytes", c.Writer.Size()),
	}
	if len(c.Errors) > 0 {
		fields = append(fields, zap.String("errors", c.Errors.String()))
	}
	ce.Write(fields...)
}

func levelFor(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
