package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"imageprompt/internal/adapter/repo"
	"imageprompt/internal/events"
	"imageprompt/internal/http/handlers"
	httpapi "imageprompt/internal/http/httpapi"
	"imageprompt/internal/imageprompt"
	"imageprompt/internal/infra"
	"imageprompt/internal/infra/geoip"
	"imageprompt/internal/metrics"
	"imageprompt/internal/middleware"
	"imageprompt/internal/providers/coze"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	collector := metrics.New()
	observers := []imageprompt.Observer{collector}
	var checks []handlers.HealthCheck
	var stats handlers.StatsSource

	// Submission audit trail (optional)
	if cfg.DatabaseEnabled() {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()

		audit := repo.NewSubmissionRepository(infra.NewSQLRunner(dbpool, logger))
		if err := audit.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare audit schema")
		}
		observers = append(observers, audit)
		stats = audit
		checks = append(checks, handlers.HealthCheck{Name: "postgres", Check: dbpool.Ping})
	}

	// Settled-submission events (optional)
	if cfg.NATSURL != "" {
		publisher, err := events.Connect(cfg.NATSURL, cfg.NATSSubject, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect nats")
		}
		defer publisher.Close()
		observers = append(observers, publisher)
		checks = append(checks, handlers.HealthCheck{Name: "nats", Check: publisher.Check})
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.GeoIPDBPath).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	provider := coze.NewClient(coze.Options{
		BaseURL:        cfg.CozeBaseURL,
		Credentials:    infra.EnvCredentials{},
		ProxyURL:       cfg.ProviderProxyURL,
		Logger:         &logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
	service, err := imageprompt.NewService(imageprompt.Options{
		Provider:  provider,
		Observers: observers,
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build submission service")
	}

	app, err := handlers.NewApp(service, &logger, cfg.MaxUploadBytes)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build handlers")
	}
	app.Stats = stats
	app.Checks = checks

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:            logger,
		DefaultLocale:     cfg.DefaultLocale,
		CountryLookup:     lookup,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		RateLimit:         cfg.RateLimitPerMin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Metrics:           collector,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Bool("proxy", cfg.ProviderProxyURL != nil).
			Int("observers", len(observers)).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
