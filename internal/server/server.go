package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nulzo/streamchat/internal/analytics"
	"github.com/nulzo/streamchat/internal/config"
	"github.com/nulzo/streamchat/internal/gateway"
	"github.com/nulzo/streamchat/internal/server/validator"
	"github.com/nulzo/streamchat/internal/settings"
)

type Server struct {
	router    *gin.Engine
	config    *config.Config
	logger    *zap.Logger
	service   gateway.Service
	settings  settings.Store
	analytics analytics.Service
	validator *validator.Validator
	version   string
}

type Option func(*Server)

// WithAnalytics exposes the stream log endpoints.
func WithAnalytics(a analytics.Service) Option {
	return func(s *Server) { s.analytics = a }
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

func New(cfg *config.Config, logger *zap.Logger, service gateway.Service, store settings.Store, opts ...Option) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:    gin.New(),
		service:   service,
		settings:  store,
		logger:    logger,
		config:    cfg,
		validator: validator.New(),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
