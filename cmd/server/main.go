package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nulzo/streamchat/internal/analytics"
	"github.com/nulzo/streamchat/internal/buildinfo"
	"github.com/nulzo/streamchat/internal/cli"
	"github.com/nulzo/streamchat/internal/config"
	"github.com/nulzo/streamchat/internal/gateway"
	"github.com/nulzo/streamchat/internal/httpclient"
	"github.com/nulzo/streamchat/internal/platform/logger"
	"github.com/nulzo/streamchat/internal/platform/otel"
	"github.com/nulzo/streamchat/internal/prompt"
	"github.com/nulzo/streamchat/internal/server"
	"github.com/nulzo/streamchat/internal/settings"
	"github.com/nulzo/streamchat/internal/store/cache"
	"github.com/nulzo/streamchat/internal/store/sqlite"
	"github.com/nulzo/streamchat/internal/weather"
	"github.com/nulzo/streamchat/pkg/api"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cli.CrossMark(), err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logger.Initialize(logCfg)
	defer logger.Sync()
	log := logger.Get()

	if cfg.Log.Format != "json" {
		printBanner()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.CheckUpdates {
		go buildinfo.NewChecker().CheckForUpdates(ctx, log)
	}

	if cfg.Tracing.Enabled {
		shutdownTracer, err := otel.InitTracer(cfg.Tracing.ServiceName, log,
			otel.WithVersion(buildinfo.Version),
			otel.WithSampleRatio(cfg.Tracing.SampleRatio),
		)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Warn("Tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	var cacheSvc cache.CacheService
	if cfg.Settings.Backend == "redis" {
		rdb, err := cache.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = rdb.Close() }()
		cacheSvc = cache.NewRedis(rdb)
		log.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	store, err := settings.New(cfg.Settings, cacheSvc)
	if err != nil {
		return err
	}

	gatewayOpts := []gateway.Option{
		gateway.WithLogger(log),
		gateway.WithHTTPClient(httpclient.NewClient(cfg.HTTP.ConnectTimeout, cfg.HTTP.ResponseHeaderTimeout)),
		gateway.WithEndpoints(endpoints(cfg.Endpoints)),
	}
	if cfg.Breaker.Enabled {
		gatewayOpts = append(gatewayOpts, gateway.WithBreaker(gateway.BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			Timeout:     cfg.Breaker.Timeout,
			Interval:    cfg.Breaker.Interval,
		}))
	} else {
		gatewayOpts = append(gatewayOpts, gateway.WithoutBreaker())
	}

	if cfg.Weather.Enabled {
		weatherCache := cacheSvc
		if weatherCache == nil {
			weatherCache = cache.NewMemory()
		}
		forecast := weather.NewClient(cfg.Weather.APIKey,
			weather.WithBaseURL(cfg.Weather.BaseURL),
			weather.WithLocation(cfg.Weather.Location),
			weather.WithDays(cfg.Weather.Days),
			weather.WithCache(weatherCache, cfg.Weather.CacheTTL),
			weather.WithLogger(log),
		)
		gatewayOpts = append(gatewayOpts, gateway.WithPromptBuilder(
			prompt.NewBuilder(prompt.WithWeather(forecast.Forecast)),
		))
	}

	serverOpts := []server.Option{server.WithVersion(buildinfo.Version)}

	if cfg.Database.Enabled {
		repo, err := sqlite.NewSQLiteStorage(cfg.Database.DSN, log,
			sqlite.WithMaxOpenConns(cfg.Database.MaxOpenConns))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() { _ = repo.Close() }()

		ingestor := analytics.NewIngestor(log, repo)
		// stopped explicitly so streams finishing during shutdown are still recorded
		ingestor.Start(context.Background())
		defer ingestor.Stop()

		gatewayOpts = append(gatewayOpts, gateway.WithIngestor(ingestor))
		serverOpts = append(serverOpts, server.WithAnalytics(analytics.NewService(repo)))
	}

	service := gateway.NewService(store, gatewayOpts...)
	srv := server.New(cfg, log, service, store, serverOpts...)

	if cfg.Server.DebugAddr != "" {
		go serveDebug(cfg.Server.DebugAddr, log)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(fmt.Sprintf("%s Relay listening", cli.Arrow()),
			zap.String("addr", httpServer.Addr),
			zap.String("settings_backend", cfg.Settings.Backend),
			zap.String("version", buildinfo.Version),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Graceful shutdown failed", zap.Error(err))
	}
	log.Info(fmt.Sprintf("%s Stopped", cli.CheckMark()))
	return nil
}

func endpoints(m map[string]string) map[api.ProviderID]string {
	out := make(map[api.ProviderID]string, len(m))
	for id, url := range m {
		out[api.ProviderID(id)] = url
	}
	return out
}

func serveDebug(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	log.Info("Debug listener started", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("Debug listener stopped", zap.Error(err))
	}
}

func printBanner() {
	fmt.Println(cli.Gradient("streamchat relay", cli.BrandBlue, cli.BrandPurple) +
		" " + cli.Stylize(buildinfo.Version, cli.DimCode))
}
