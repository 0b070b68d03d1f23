package ratelimit

import (
	"context"
	"net/http"
	"time"

	"security-gateway/apperror"
	"security-gateway/middleware/ratelimit/application"
	"security-gateway/middleware/ratelimit/domain"
)

// Decider é o que o middleware precisa da camada application.
type Decider interface {
	DecideRequest(ctx context.Context, req application.Request) domain.Decision
}

type Options struct {
	Service            Decider
	Class              string
	ClassFn            ClassFunc
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	Errors             *apperror.Handler
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.ClassFn == nil {
		opts.ClassFn = StaticClass(opts.Class)
	}
	if opts.Errors == nil {
		opts.Errors = &apperror.Handler{}
	}

	return func(next http.Handler) http.Handler {
		if opts.Service == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			dec := opts.Service.DecideRequest(r.Context(), application.Request{
				Identifier: opts.KeyFn(r),
				Class:      opts.ClassFn(r),
				Method:     r.Method,
				Path:       r.URL.Path,
			})

			setRateLimitHeaders(w.Header(), dec)
			if !dec.Allowed {
				opts.Errors.Write(w, r, rejection(dec))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(h http.Header, dec domain.Decision) {
	h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
	if !dec.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", formatUnix(dec.ResetAt))
	}
	if !dec.Allowed {
		h.Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
	}
}

func rejection(dec domain.Decision) *apperror.Error {
	err := apperror.RateLimited("Too many requests, please try again later", dec.RetryAfter)
	if dec.Blocked() {
		err = err.WithDetails(map[string]any{"blockedUntil": dec.BlockedUntil.UTC().Format(time.RFC3339)})
	}
	return err
}
