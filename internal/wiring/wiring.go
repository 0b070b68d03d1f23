// Package wiring monta as peças compartilhadas pelos binários (logger, registry,
// serviço de rate limit, fila) a partir de config.Config.
package wiring

import (
	"context"
	"os"

	"security-gateway/apperror"
	"security-gateway/instrumentation"
	"security-gateway/internal/config"
	jqinfra "security-gateway/jobqueue/infra"
	"security-gateway/logging"
	"security-gateway/middleware/ratelimit/application"
	"security-gateway/middleware/ratelimit/domain"
	rlinfra "security-gateway/middleware/ratelimit/infra"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

// NewLogger cria o logger com sink de console e, se configurados, arquivo e remoto.
func NewLogger(cfg config.LogConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	sinks := []logging.Sink{logging.NewConsoleSink(os.Stdout)}
	if cfg.File != "" {
		fs, err := logging.NewFileSink(cfg.File)
		if err != nil {
			return nil, errors.Wrap(err, "log file sink")
		}
		sinks = append(sinks, fs)
	}
	if cfg.RemoteURL != "" {
		var opts []logging.RemoteOption
		if cfg.RemoteToken != "" {
			opts = append(opts, logging.WithRemoteHeader("Authorization", "Bearer "+cfg.RemoteToken))
		}
		sinks = append(sinks, logging.NewRemoteSink(cfg.RemoteURL, opts...))
	}
	return logging.New(logging.Config{
		Service:       cfg.Service,
		MinLevel:      level,
		BufferSize:    cfg.BufferSize,
		FlushInterval: cfg.FlushInterval,
		Sinks:         sinks,
	}), nil
}

// Telemetry monta o MeterProvider do exporter configurado, registra como global do otel
// e cria os instrumentos sobre ele. Quem chama faz o Shutdown do provider.
func Telemetry(cfg config.MetricsConfig, service string) (*instrumentation.Provider, *instrumentation.Metrics, error) {
	p, err := instrumentation.NewProvider(instrumentation.ProviderConfig{
		Exporter:       cfg.Exporter,
		ServiceName:    service,
		ServiceVersion: cfg.Version,
		Interval:       cfg.Interval,
	})
	if err != nil {
		return nil, nil, err
	}
	otel.SetMeterProvider(p.MeterProvider())
	m, err := instrumentation.New(otel.GetMeterProvider())
	if err != nil {
		_ = p.Shutdown(context.Background())
		return nil, nil, err
	}
	return p, m, nil
}

func Registry(cfg config.RateLimitConfig) (*domain.Registry, error) {
	if cfg.ClassesFile == "" {
		return domain.DefaultRegistry(), nil
	}
	return rlinfra.LoadRegistryFile(cfg.ClassesFile)
}

func RateLimitService(rdb *redis.Client, reg *domain.Registry, cfg config.RateLimitConfig, log *logging.Logger, m *instrumentation.Metrics) application.Service {
	svc := application.Service{
		Limiter:  rlinfra.NewRedisLimiter(rdb),
		Registry: reg,
		Log:      log,
		Metrics:  m,
	}
	if cfg.StatsEnabled {
		svc.Stats = rlinfra.NewRedisStatsStore(rdb,
			rlinfra.WithStatsPrefix(cfg.StatsPrefix),
			rlinfra.WithStatsTTL(cfg.StatsTTL),
			rlinfra.WithStatsBucket(cfg.StatsBucket),
			rlinfra.WithStatsTrackIdentifiers(cfg.StatsTrackIdentifiers),
		)
	}
	return svc
}

func Queue(rdb *redis.Client, cfg config.JobsConfig, log *logging.Logger, m *instrumentation.Metrics) (*jqinfra.RedisQueue, *jqinfra.Signer, error) {
	signer, err := jqinfra.SignerFromSecret(cfg.Secret, log)
	if err != nil {
		return nil, nil, err
	}
	q := jqinfra.NewRedisQueue(rdb, signer,
		jqinfra.WithLogger(log),
		jqinfra.WithMetrics(m),
		jqinfra.WithDequeueTimeout(cfg.DequeueTimeout),
	)
	return q, signer, nil
}

func ErrorHandler(cfg config.Config, log *logging.Logger) *apperror.Handler {
	return &apperror.Handler{Log: log, Production: cfg.Production}
}
