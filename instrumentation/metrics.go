package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "security-gateway"

// Metrics agrupa os contadores do gateway, da fila e dos eventos de segurança.
type Metrics struct {
	// rate limit
	RateLimitDecisions metric.Int64Counter
	RateLimitFailOpen  metric.Int64Counter
	RateLimitBlocks    metric.Int64Counter

	// fila de jobs
	JobEvents    metric.Int64Counter
	JobDiscarded metric.Int64Counter

	// segurança
	SecurityEvents metric.Int64Counter
}

// New cria os instrumentos no provider informado. Provider nil vira noop.
func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &Metrics{}
	var err error

	m.RateLimitDecisions, err = meter.Int64Counter(
		"ratelimit.decisions.total",
		metric.WithDescription("Rate limit decisions by class and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.decisions.total counter: %w", err)
	}

	m.RateLimitFailOpen, err = meter.Int64Counter(
		"ratelimit.fail_open.total",
		metric.WithDescription("Requests allowed because the store was unavailable"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.fail_open.total counter: %w", err)
	}

	m.RateLimitBlocks, err = meter.Int64Counter(
		"ratelimit.blocks.total",
		metric.WithDescription("Punitive blocks started"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.blocks.total counter: %w", err)
	}

	m.JobEvents, err = meter.Int64Counter(
		"jobs.events.total",
		metric.WithDescription("Job lifecycle transitions (enqueued, dequeued, completed, requeued, failed, recovered)"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs.events.total counter: %w", err)
	}

	m.JobDiscarded, err = meter.Int64Counter(
		"jobs.discarded.total",
		metric.WithDescription("Jobs dropped at dequeue (expired, missing, corrupt, stale, token_mismatch)"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create jobs.discarded.total counter: %w", err)
	}

	m.SecurityEvents, err = meter.Int64Counter(
		"security.events.total",
		metric.WithDescription("Security events by type"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security.events.total counter: %w", err)
	}

	return m, nil
}

// RecordDecision conta uma decisão do rate limit.
func (m *Metrics) RecordDecision(ctx context.Context, class string, allowed bool) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("class", class),
		attribute.Bool("allowed", allowed),
	))
}

// RecordFailOpen conta uma liberação feita sem o Store.
func (m *Metrics) RecordFailOpen(ctx context.Context, class string) {
	if m == nil {
		return
	}
	m.RateLimitFailOpen.Add(ctx, 1, metric.WithAttributes(attribute.String("class", class)))
}

func (m *Metrics) RecordBlock(ctx context.Context, class string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.Add(ctx, 1, metric.WithAttributes(attribute.String("class", class)))
}

// RecordJob conta uma transição do ciclo de vida do job.
func (m *Metrics) RecordJob(ctx context.Context, event, jobType string) {
	if m == nil {
		return
	}
	m.JobEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("job_type", jobType),
	))
}

func (m *Metrics) RecordDiscard(ctx context.Context, jobType, reason string) {
	if m == nil {
		return
	}
	m.JobDiscarded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", jobType),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) RecordSecurityEvent(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.SecurityEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
