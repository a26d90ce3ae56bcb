package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nulzo/streamchat/internal/gateway"
	"github.com/nulzo/streamchat/internal/server/middleware"
	"github.com/nulzo/streamchat/internal/server/validator"
	"github.com/nulzo/streamchat/pkg/api"
)

type StreamHandler struct {
	service   gateway.Service
	validator *validator.Validator
	logger    *zap.Logger
}

func NewStreamHandler(service gateway.Service, v *validator.Validator, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		service:   service,
		validator: v,
		logger:    logger,
	}
}

// Stream relays one chat answer as server-sent events. Each fragment is sent
// as `data: {"content": "..."}` and the stream ends with `data: [DONE]`.
// Failures before the first fragment are plain problem documents; later
// failures are sent as an `error` event.
//
// POST /v1/chat/stream
func (h *StreamHandler) Stream(c *gin.Context) {
	var req api.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationProblem(h.validator.ParseError(err)))
		return
	}

	sse := &eventWriter{c: c}
	err := h.service.SendMessageStream(c.Request.Context(), req.Message, req.History, func(fragment string) {
		sse.data(api.FragmentEvent{Content: fragment})
	})

	switch {
	case err == nil:
		sse.done()
	case !sse.started:
		_ = c.Error(err)
	case errors.Is(err, api.ErrCanceled):
		// client went away mid-stream, nobody is left to tell
	default:
		h.logger.Warn("Stream failed after first fragment",
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err),
		)
		sse.fail(api.ProblemFromError(err))
	}
}

// eventWriter commits SSE headers lazily so that a request failing before
// its first fragment can still get a proper status code.
type eventWriter struct {
	c       *gin.Context
	started bool
	broken  bool
}

func (w *eventWriter) start() {
	if w.started {
		return
	}
	w.started = true

	h := w.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.c.Status(http.StatusOK)
}

func (w *eventWriter) write(event string, payload []byte) {
	w.start()
	if w.broken {
		return
	}
	if event != "" {
		if _, err := fmt.Fprintf(w.c.Writer, "event: %s\n", event); err != nil {
			w.broken = true
			return
		}
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", payload); err != nil {
		w.broken = true
		return
	}
	w.c.Writer.Flush()
}

func (w *eventWriter) data(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	w.write("", payload)
}

func (w *eventWriter) done() {
	w.write("", []byte("[DONE]"))
}

func (w *eventWriter) fail(p *api.Problem) {
	payload, err := json.Marshal(p)
	if err != nil {
		return
	}
	w.write("error", payload)
}
