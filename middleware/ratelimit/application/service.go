package application

import (
	"context"
	"time"

	"security-gateway/instrumentation"
	"security-gateway/logging"
	"security-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// A política para falha do Store é fail-open: a chamada é liberada, o erro vai para o log
// (com throttle) e nunca é devolvido ao chamador.
type Service struct {
	Limiter  domain.Limiter
	Registry *domain.Registry
	Stats    domain.StatsStore
	Log      *logging.Logger
	Metrics  *instrumentation.Metrics
	Now      func() time.Time
}

// Request carrega os dados opcionais usados em estatísticas.
type Request struct {
	Identifier string
	Class      string
	Method     string
	Path       string
}

func (s Service) Decide(ctx context.Context, identifier, className string) domain.Decision {
	return s.DecideRequest(ctx, Request{Identifier: identifier, Class: className})
}

func (s Service) DecideRequest(ctx context.Context, req Request) domain.Decision {
	class := s.resolve(req.Class)
	if s.Limiter == nil {
		return domain.Decision{Allowed: true, Limit: class.MaxRequests, Remaining: class.MaxRequests - 1}
	}

	dec, err := s.Limiter.Check(ctx, req.Identifier, class)
	if err != nil {
		dec = s.failOpen(ctx, class, err)
	}

	s.observe(ctx, req, class, dec)
	return dec
}

// Reset é o override administrativo: apaga contador e bloqueio.
func (s Service) Reset(ctx context.Context, identifier, className string) error {
	class := s.resolve(className)
	if err := s.Limiter.Reset(ctx, identifier, class); err != nil {
		return err
	}
	s.Log.Audit("rate_limit_reset", logging.Fields{"identifier": identifier, "class": class.Name})
	return nil
}

func (s Service) Usage(ctx context.Context, identifier, className string) (domain.Usage, error) {
	return s.Limiter.Stats(ctx, identifier, s.resolve(className))
}

func (s Service) Class(name string) domain.LimitClass { return s.resolve(name) }

func (s Service) resolve(name string) domain.LimitClass {
	reg := s.Registry
	if reg == nil {
		reg = domain.DefaultRegistry()
	}
	return reg.Resolve(name)
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) failOpen(ctx context.Context, class domain.LimitClass, err error) domain.Decision {
	s.Metrics.RecordFailOpen(ctx, class.Name)
	s.Log.WarnThrottled("ratelimit:fail_open:"+class.Name, "ratelimit_fail_open",
		"rate limit store unavailable, allowing request", logging.Fields{
			"class": class.Name,
			"error": err.Error(),
		})
	return domain.Decision{
		Allowed:   true,
		Limit:     class.MaxRequests,
		Remaining: class.MaxRequests - 1,
		ResetAt:   s.now().Add(class.Interval),
		FailOpen:  true,
	}
}

func (s Service) observe(ctx context.Context, req Request, class domain.LimitClass, dec domain.Decision) {
	s.Metrics.RecordDecision(ctx, class.Name, dec.Allowed)

	if dec.BlockStarted {
		s.Metrics.RecordBlock(ctx, class.Name)
		s.Metrics.RecordSecurityEvent(ctx, "rate_limit_block")
		s.Log.Security("rate_limit_block", logging.SeverityMedium, logging.Fields{
			"identifier":   req.Identifier,
			"class":        class.Name,
			"blockedUntil": dec.BlockedUntil.UTC().Format(time.RFC3339),
		})
	} else if !dec.Allowed {
		s.Log.WarnThrottled("ratelimit:exceeded:"+class.Name+":"+req.Identifier, "rate_limit_exceeded",
			"rate limit exceeded", logging.Fields{
				"identifier": req.Identifier,
				"class":      class.Name,
			})
	}

	if s.Stats == nil {
		return
	}
	// best-effort: estatística nunca derruba a decisão
	_ = s.Stats.Record(ctx, domain.StatsEvent{
		Identifier: req.Identifier,
		Class:      class.Name,
		Allowed:    dec.Allowed,
		Blocked:    dec.Blocked(),
		FailOpen:   dec.FailOpen,
		Method:     req.Method,
		Path:       req.Path,
		At:         s.now(),
	})
}
