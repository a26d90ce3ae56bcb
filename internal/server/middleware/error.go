package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nulzo/streamchat/pkg/api"
)

// ErrorHandler renders the last error a handler attached with c.Error as an
// RFC 9457 problem document.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		problem := api.ProblemFromError(err)

		if problem.Log != nil {
			fields := []zap.Field{
				zap.Int("status", problem.Status),
				zap.String("request_id", c.GetString(RequestIDKey)),
				zap.Error(problem.Log),
			}
			if problem.Status >= 500 {
				logger.Error("Request failed", fields...)
			} else {
				logger.Warn("Request failed", fields...)
			}
		}

		// a streaming handler may already have committed the response
		if c.Writer.Written() {
			return
		}

		if problem.Instance == "" {
			problem.Instance = c.Request.URL.Path
		}
		c.Header("Content-Type", "application/problem+json")
		c.JSON(problem.Status, problem)
		c.Abort()
	}
}
