package instrumentation

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Exporters aceitos em ProviderConfig.Exporter.
const (
	ExporterNone       = "none"
	ExporterPrometheus = "prometheus"
	ExporterStdout     = "stdout"
)

type ProviderConfig struct {
	Exporter       string
	ServiceName    string
	ServiceVersion string

	// Interval e Writer só valem para o exporter stdout.
	Interval time.Duration
	Writer   io.Writer
}

// Provider é o MeterProvider do processo e, no caso do prometheus, o handler de /metrics.
type Provider struct {
	exporter string
	provider metric.MeterProvider
	sdk      *sdkmetric.MeterProvider
	handler  http.Handler
}

func NewProvider(cfg ProviderConfig) (*Provider, error) {
	exporter := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if exporter == "" || exporter == ExporterNone {
		return &Provider{exporter: ExporterNone, provider: noop.NewMeterProvider()}, nil
	}

	res := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	p := &Provider{exporter: exporter}
	var reader sdkmetric.Reader
	switch exporter {
	case ExporterPrometheus:
		// registry próprio, fora do prometheus.DefaultRegisterer
		reg := prometheus.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, errors.Wrap(err, "prometheus exporter")
		}
		reader = exp
		p.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, errors.Wrap(err, "stdout exporter")
		}
		interval := cfg.Interval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		reader = sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))
	default:
		return nil, errors.Errorf("unknown metrics exporter %q (use none, prometheus or stdout)", cfg.Exporter)
	}

	p.sdk = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	p.provider = p.sdk
	return p, nil
}

func (p *Provider) Exporter() string { return p.exporter }

func (p *Provider) MeterProvider() metric.MeterProvider { return p.provider }

// Handler devolve o endpoint de scrape; nil quando o exporter não é prometheus.
func (p *Provider) Handler() http.Handler { return p.handler }

// Shutdown exporta o que estiver pendente e libera o exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}
