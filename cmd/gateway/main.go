package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
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
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.UpstreamURL == "" {
		log.Fatalf("config error: UPSTREAM_URL is required")
	}
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
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

	go logger.Run(ctx)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(flushCtx)
		_ = logger.Close(flushCtx)
	}()

	// Redis fora no boot não derruba o gateway: o rate limit segue em fail-open
	// e o cliente reconecta sozinho.
	rdb, err := redisclient.Open(ctx, cfg.Redis)
	if rdb == nil {
		log.Fatalf("redis: %v", err)
	}
	if err != nil {
		logger.Event(logging.LevelWarn, "redis_unavailable_at_startup",
			"redis unreachable, rate limit will fail open until it recovers", logging.Fields{
				"addr":  cfg.Redis.Addr,
				"error": err.Error(),
			})
	}
	defer func() { _ = rdb.Close() }()

	errs := wiring.ErrorHandler(cfg, logger)
	svc := wiring.RateLimitService(rdb, registry, cfg.RateLimit, logger, metrics)
	queue, signer, err := wiring.Queue(rdb, cfg.Jobs, logger, metrics)
	if err != nil {
		log.Fatalf("job queue: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		errs.Write(w, r, apperror.External(target.Host, err))
	}

	mux := http.NewServeMux()
	mux.Handle("/privacy/", http.StripPrefix("/privacy", compliance.Routes(
		compliance.Producer{Queue: queue, Signer: signer, Log: logger}, errs)))
	mux.Handle("/", proxy)

	h := http.Handler(mux)
	if cfg.RateLimit.Enabled {
		classFn := ratelimit.StaticClass(cfg.RateLimit.Class)
		if len(cfg.RateLimit.Routes) > 0 {
			classFn = ratelimit.PathClasses(cfg.RateLimit.Routes, cfg.RateLimit.Class)
		}
		h = ratelimit.Middleware(ratelimit.Options{
			Service:            svc,
			ClassFn:            classFn,
			KeyHeader:          cfg.RateLimit.KeyHeader,
			TrustXForwardedFor: cfg.RateLimit.TrustXFF,
			Errors:             errs,
		})(h)
	}
	h = errs.Recover(h)
	h = apperror.RequestIDMiddleware(h)

	// /metrics fica fora do rate limit e do proxy
	if mh := telemetry.Handler(); mh != nil {
		root := http.NewServeMux()
		root.Handle("/metrics", mh)
		root.Handle("/", h)
		h = root
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening", logging.Fields{
		"addr":       cfg.ListenAddr,
		"upstream":   target.String(),
		"rateLimit":  cfg.RateLimit.Enabled,
		"classes":    registry.Names(),
		"version":    registry.Version(),
		"production": cfg.Production,
		"metrics":    telemetry.Exporter(),
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Critical("server error", logging.Fields{"error": err.Error()})
	}
}
