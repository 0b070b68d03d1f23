package instrumentation

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_None(t *testing.T) {
	for _, exp := range []string{"", "none"} {
		p, err := NewProvider(ProviderConfig{Exporter: exp})
		require.NoError(t, err)
		assert.Equal(t, ExporterNone, p.Exporter())
		assert.Nil(t, p.Handler())
		assert.NoError(t, p.Shutdown(context.Background()))
	}
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := NewProvider(ProviderConfig{Exporter: "statsd"})
	assert.Error(t, err)
}

func TestNewProvider_PrometheusServesRecordedCounters(t *testing.T) {
	ctx := context.Background()
	p, err := NewProvider(ProviderConfig{Exporter: "prometheus", ServiceName: "gateway-test", ServiceVersion: "test"})
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()
	require.NotNil(t, p.Handler())

	m, err := New(p.MeterProvider())
	require.NoError(t, err)
	m.RecordDecision(ctx, "api:auth", false)
	m.RecordDiscard(ctx, "data_export", "token_mismatch")

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ratelimit_decisions")
	assert.Contains(t, string(body), `class="api:auth"`)
	assert.Contains(t, string(body), `reason="token_mismatch"`)
}

func TestNewProvider_StdoutFlushesOnShutdown(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	p, err := NewProvider(ProviderConfig{Exporter: "stdout", ServiceName: "worker-test", Writer: &buf})
	require.NoError(t, err)
	assert.Nil(t, p.Handler())

	m, err := New(p.MeterProvider())
	require.NoError(t, err)
	m.RecordJob(ctx, "completed", "data_export")

	require.NoError(t, p.Shutdown(ctx))
	assert.Contains(t, buf.String(), "jobs.events.total")
	assert.Contains(t, buf.String(), "worker-test")
}
