package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/homecare-api/internal/bootstrap"
	"github.com/jwalitptl/homecare-api/internal/config"
	"github.com/jwalitptl/homecare-api/internal/gateway"
	"github.com/jwalitptl/homecare-api/internal/handler"
	bookingHandler "github.com/jwalitptl/homecare-api/internal/handler/booking"
	catalogHandler "github.com/jwalitptl/homecare-api/internal/handler/catalog"
	consentHandler "github.com/jwalitptl/homecare-api/internal/handler/consent"
	patientHandler "github.com/jwalitptl/homecare-api/internal/handler/patient"
	paymentHandler "github.com/jwalitptl/homecare-api/internal/handler/payment"
	rejectionHandler "github.com/jwalitptl/homecare-api/internal/handler/rejection"
	"github.com/jwalitptl/homecare-api/internal/middleware"
	"github.com/jwalitptl/homecare-api/internal/router"
	bookingService "github.com/jwalitptl/homecare-api/internal/service/booking"
	catalogService "github.com/jwalitptl/homecare-api/internal/service/catalog"
	consentService "github.com/jwalitptl/homecare-api/internal/service/consent"
	eventService "github.com/jwalitptl/homecare-api/internal/service/event"
	patientService "github.com/jwalitptl/homecare-api/internal/service/patient"
	paymentService "github.com/jwalitptl/homecare-api/internal/service/payment"
	rejectionService "github.com/jwalitptl/homecare-api/internal/service/rejection"
	"github.com/jwalitptl/homecare-api/pkg/auth"
	"github.com/jwalitptl/homecare-api/pkg/logger"
	"github.com/jwalitptl/homecare-api/pkg/metrics"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func newLogger(cfg config.LogConfig) *logger.Logger {
	return logger.Setup(&logger.Config{
		Level:  logger.ParseLevel(cfg.Level),
		Format: cfg.Format,
	})
}

func runServer(cfg *config.Config) error {
	log := newLogger(cfg.Log)
	zl := log.Zerolog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	location, err := cfg.Booking.Location()
	if err != nil {
		return err
	}

	store, err := bootstrap.OpenStore(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("homecare", registry)

	events := eventService.NewOutboxEmitter(store.Outbox)
	payments := gateway.NewHTTPClient(gateway.Config{
		BaseURL:            cfg.Payment.GatewayURL,
		APIKey:             cfg.Payment.APIKey,
		Timeout:            cfg.Payment.Timeout,
		BreakerMaxFailures: cfg.Payment.BreakerMaxFailures,
		BreakerTimeout:     cfg.Payment.BreakerTimeout,
	})
	if cfg.Payment.GatewayURL == "" {
		zl.Warn().Msg("payment gateway not configured, online payments will fail")
	}

	// Initialize services
	consentSvc := consentService.NewService(store.Tx, store.Consents, store.Patients, events, cfg.Consent.Required, m)
	catalogSvc := catalogService.NewService(store.Tx, store.Catalog, store.Providers, store.ProviderServices,
		store.ServiceRequests, events, m, cfg.Catalog.CacheTTL)
	patientSvc := patientService.NewService(store.Patients, consentSvc)
	bookingSvc := bookingService.NewService(store.Tx, store.Bookings, store.Patients, catalogSvc, consentSvc, events, m, location)
	rejectionSvc := rejectionService.NewService(store.Tx, store.Rejections, store.Bookings, events, m)
	paymentSvc := paymentService.NewService(store.Tx, store.Payments, store.Bookings, payments, events, m, cfg.Payment.ReturnURL)

	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	checks := map[string]handler.Pinger{"database": store.Pinger}

	// In-memory data is invisible to a separate worker process, so the
	// workers run here.
	workersDone := make(chan error, 1)
	if store.InMemory() {
		broker, err := bootstrap.OpenBroker(ctx, cfg, true, zl)
		if err != nil {
			return err
		}
		defer broker.Close()
		checks["broker"] = broker
		go func() {
			workersDone <- bootstrap.RunWorkers(ctx, cfg, store, broker, log, m)
		}()
	} else {
		close(workersDone)
	}

	handlers := []router.Handler{
		bookingHandler.NewHandler(bookingSvc, authMiddleware),
		rejectionHandler.NewHandler(rejectionSvc, authMiddleware),
		catalogHandler.NewHandler(catalogSvc, authMiddleware),
		consentHandler.NewHandler(consentSvc),
		patientHandler.NewHandler(patientSvc, authMiddleware),
		paymentHandler.NewHandler(paymentSvc, authMiddleware),
	}

	r := router.NewRouter(authMiddleware, handler.NewHealth(checks), handlers, m, registry, *zl, router.RouterConfig{
		Mode:           cfg.Server.Mode,
		RateLimit:      rate.Limit(cfg.Security.RateLimit.RequestsPerSecond),
		RateBurst:      cfg.Security.RateLimit.Burst,
		RateLimitTTL:   cfg.Security.RateLimit.IdleTTL,
		RateLimitOff:   !cfg.Security.RateLimit.Enabled,
		CORSConfig:     middleware.DefaultCORSConfig(cfg.Security.AllowedOrigins),
		MaxBodyBytes:   cfg.Security.MaxBodyBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	r.Setup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "port", cfg.Server.Port, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}
	stop()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	if err := <-workersDone; err != nil {
		log.Error(err, "background workers stopped with error")
	}
	log.Info("server exited properly")
	return nil
}
