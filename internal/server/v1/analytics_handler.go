package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/streamchat/internal/analytics"
	"github.com/nulzo/streamchat/pkg/api"
)

type AnalyticsHandler struct {
	service analytics.Service
}

func NewAnalyticsHandler(service analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// GetUsage returns per-day, per-provider stream statistics.
//
// GET /v1/streams/stats?days=7
func (h *AnalyticsHandler) GetUsage(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil {
		_ = c.Error(api.ValidationProblem(map[string]string{"days": "must be an integer"}))
		return
	}

	stats, err := h.service.GetUsageOverview(c.Request.Context(), days)
	if err != nil {
		_ = c.Error(api.NewProblem(http.StatusInternalServerError, "Internal Server Error", "Failed to fetch stream statistics", api.WithLog(err)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   stats,
	})
}

// GetRecent returns the most recent stream logs, newest first.
//
// GET /v1/streams/recent?limit=20
func (h *AnalyticsHandler) GetRecent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		_ = c.Error(api.ValidationProblem(map[string]string{"limit": "must be an integer"}))
		return
	}

	logs, err := h.service.GetRecent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(api.NewProblem(http.StatusInternalServerError, "Internal Server Error", "Failed to fetch stream logs", api.WithLog(err)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   logs,
	})
}
