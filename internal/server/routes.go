package server

import (
	ginzap "github.com/gin-contrib/zap"

	"github.com/nulzo/streamchat/internal/server/middleware"
	v1 "github.com/nulzo/streamchat/internal/server/v1"
)

func (s *Server) SetupRoutes() {
	if s.config.Tracing.Enabled {
		s.router.Use(middleware.Tracing(s.config.Tracing.ServiceName))
	}
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.logger,
		middleware.WithSkipPaths("/health"),
		middleware.WithStreamPaths("/v1/chat/stream"),
	))
	s.router.Use(ginzap.RecoveryWithZap(s.logger, true))
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.ErrorHandler(s.logger))

	healthHandler := v1.NewHealthHandler(s.service, s.version)
	s.router.GET("/health", healthHandler.Health)

	limiter := middleware.NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst, s.logger,
		middleware.WithIdleTTL(s.config.RateLimit.IdleTTL))
	auth := middleware.Auth(s.config.Server.APIKeys)

	api := s.router.Group("/v1")
	api.Use(auth, limiter.Middleware())
	{
		streamHandler := v1.NewStreamHandler(s.service, s.validator, s.logger)
		api.POST("/chat/stream", streamHandler.Stream)

		if s.analytics != nil {
			analyticsHandler := v1.NewAnalyticsHandler(s.analytics)
			api.GET("/streams/recent", analyticsHandler.GetRecent)
			api.GET("/streams/stats", analyticsHandler.GetUsage)
		}
	}

	settingsGroup := s.router.Group("/api")
	settingsGroup.Use(auth)
	{
		settingsHandler := v1.NewSettingsHandler(s.settings, s.validator)
		settingsGroup.GET("/settings", settingsHandler.Get)
		settingsGroup.PUT("/settings", settingsHandler.Put)
	}
}
