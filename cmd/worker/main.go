package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"security-gateway/compliance"
	"security-gateway/internal/config"
	"security-gateway/internal/redisclient"
	"security-gateway/internal/wiring"
	"security-gateway/jobqueue/application"
	"security-gateway/jobqueue/infra"
	"security-gateway/logging"
)

func main() {
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()

	go logger.Run(ctx)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(flushCtx)
		_ = logger.Close(flushCtx)
	}()

	if mh := telemetry.Handler(); mh != nil {
		go serveMetrics(ctx, cfg.Metrics.Addr, mh, logger)
	}

	queue, _, err := wiring.Queue(rdb, cfg.Jobs, logger, metrics)
	if err != nil {
		log.Fatalf("job queue: %v", err)
	}

	w := &application.Worker{
		Queue:             queue,
		Pool:              infra.NewChanPool(cfg.Jobs.Concurrency),
		Log:               logger,
		VisibilityTimeout: cfg.Jobs.VisibilityTimeout,
		MaintenanceEvery:  cfg.Jobs.MaintenanceEvery,
	}
	for _, jobType := range cfg.Jobs.Types {
		switch jobType {
		case compliance.JobDataExport:
			w.Handle(jobType, compliance.ExportHandler(compliance.FileExporter{Dir: cfg.Jobs.ExportDir}, logger))
		case compliance.JobDataDeletion:
			w.Handle(jobType, compliance.DeletionHandler(compliance.AuditDeleter{Log: logger}, logger))
		default:
			logger.Warn("no handler for configured job type", logging.Fields{"jobType": jobType})
		}
	}

	if err := w.Run(ctx); err != nil {
		logger.Critical("worker error", logging.Fields{"error": err.Error()})
	}
}

// serveMetrics expõe /metrics do worker, que não tem servidor HTTP próprio.
func serveMetrics(ctx context.Context, addr string, h http.Handler, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("worker metrics listening", logging.Fields{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", logging.Fields{"error": err.Error()})
	}
}
