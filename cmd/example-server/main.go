package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"security-gateway/apperror"
	"security-gateway/compliance"
	"security-gateway/internal/config"
	"security-gateway/internal/redisclient"
	"security-gateway/internal/wiring"
	"security-gateway/logging"
	"security-gateway/middleware/ratelimit"

	"github.com/go-chi/chi/v5"
)

func main() {
	// Exemplo: middleware e error handler direto numa app chi (sem proxy)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := wiring.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	telemetry, metrics, err := wiring.Telemetry(cfg.Metrics, cfg.Log.Service)
	if err != nil {
		log.Fatalf("metrics error: %v", err)
	}
	registry, err := wiring.Registry(cfg.RateLimit)
	if err != nil {
		log.Fatalf("rate limit classes: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	go logger.Run(ctx)
	defer func() {
		_ = telemetry.Shutdown(context.Background())
		_ = logger.Close(context.Background())
	}()

	errs := wiring.ErrorHandler(cfg, logger)
	svc := wiring.RateLimitService(rdb, registry, cfg.RateLimit, logger, metrics)
	queue, signer, err := wiring.Queue(rdb, cfg.Jobs, logger, metrics)
	if err != nil {
		log.Fatalf("job queue: %v", err)
	}

	limit := func(class string) func(http.Handler) http.Handler {
		return ratelimit.Middleware(ratelimit.Options{
			Service:   svc,
			Class:     class,
			KeyHeader: "X-Api-Key", // ou vazio para usar IP
			Errors:    errs,
		})
	}

	r := chi.NewRouter()
	r.Use(apperror.RequestIDMiddleware)
	r.Use(errs.Recover)

	if mh := telemetry.Handler(); mh != nil {
		r.Handle("/metrics", mh)
	}
	r.With(limit("api:public")).Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.With(limit("action:login")).Method(http.MethodPost, "/login", errs.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		if r.Header.Get("Authorization") == "" {
			return apperror.Unauthorized("missing credentials")
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	}))
	r.Group(func(r chi.Router) {
		r.Use(limit("action:data_export"))
		r.Mount("/privacy", compliance.Routes(compliance.Producer{Queue: queue, Signer: signer, Log: logger}, errs))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", logging.Fields{"addr": cfg.ListenAddr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Critical("server error", logging.Fields{"error": err.Error()})
	}
}
