package wiring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"security-gateway/internal/config"
	"security-gateway/jobqueue/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewLogger_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := NewLogger(config.LogConfig{Level: "info", File: path, Service: "test"})
	require.NoError(t, err)

	log.Info("hello", nil)
	require.NoError(t, log.Close(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hello"`)
}

func TestRegistry_DefaultAndFile(t *testing.T) {
	reg, err := Registry(config.RateLimitConfig{})
	require.NoError(t, err)
	_, ok := reg.Lookup("api:auth")
	assert.True(t, ok)

	path := filepath.Join(t.TempDir(), "classes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "2026-10"
classes:
  - name: default
    interval: 1m
    maxRequests: 10
`), 0o600))
	reg, err = Registry(config.RateLimitConfig{ClassesFile: path})
	require.NoError(t, err)
	assert.Equal(t, "2026-10", reg.Version())
}

func TestRateLimitServiceAndQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	p, m, err := Telemetry(config.MetricsConfig{Exporter: "none"}, "wiring-test")
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()

	reg, err := Registry(config.RateLimitConfig{})
	require.NoError(t, err)
	svc := RateLimitService(rdb, reg, config.RateLimitConfig{StatsEnabled: true, StatsBucket: "minute", StatsTTL: time.Hour}, nil, m)
	dec := svc.Decide(ctx, "ip:1.2.3.4", "api:auth")
	assert.True(t, dec.Allowed)
	require.NotNil(t, svc.Stats)

	q, signer, err := Queue(rdb, config.JobsConfig{Secret: "s", DequeueTimeout: time.Second}, nil, m)
	require.NoError(t, err)
	id, err := q.Enqueue(ctx, "data_export", domain.NewPayload("r", signer.GenerateJobToken("r", "data_export"), nil))
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, "data_export")
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
}

func TestTelemetry_PrometheusSeesServiceDecisions(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	p, m, err := Telemetry(config.MetricsConfig{Exporter: "prometheus", Version: "test"}, "wiring-test")
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()
	require.NotNil(t, p.Handler())

	reg, err := Registry(config.RateLimitConfig{})
	require.NoError(t, err)
	svc := RateLimitService(rdb, reg, config.RateLimitConfig{}, nil, m)
	svc.Decide(ctx, "ip:1.2.3.4", "api:auth")

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `class="api:auth"`)
}

func TestTelemetry_RejectsUnknownExporter(t *testing.T) {
	_, _, err := Telemetry(config.MetricsConfig{Exporter: "statsd"}, "wiring-test")
	assert.Error(t, err)
}
