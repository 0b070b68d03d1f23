package logging

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle limita eventos repetitivos por chave (token bucket via x/time/rate),
// com cache por chave e limpeza periódica de chaves inativas.
//
// Usado para não inundar os sinks com o mesmo aviso (ex: Store fora do ar em todo request).
type Throttle struct {
	mu           sync.Mutex
	entries      map[string]*throttleEntry
	limit        rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type throttleEntry struct {
	lim        *rate.Limiter
	lastSeen   time.Time
	suppressed int
}

type ThrottleOption func(*Throttle)

func WithIdleTTL(d time.Duration) ThrottleOption {
	return func(t *Throttle) { t.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) ThrottleOption {
	return func(t *Throttle) { t.cleanupEvery = d }
}

// NewThrottle deixa passar `burst` eventos e depois um a cada `every`, por chave.
func NewThrottle(every time.Duration, burst int, opts ...ThrottleOption) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	t := &Throttle{
		entries:      make(map[string]*throttleEntry),
		limit:        rate.Every(every),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	if every <= 0 {
		t.limit = rate.Inf
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow informa se o evento da chave pode ser emitido agora. Quando pode, devolve também
// quantos eventos foram suprimidos desde a última emissão.
func (t *Throttle) Allow(key string) (bool, int) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	ent, ok := t.entries[key]
	if !ok {
		ent = &throttleEntry{lim: rate.NewLimiter(t.limit, t.burst)}
		t.entries[key] = ent
	}
	ent.lastSeen = now

	if !ent.lim.AllowN(now, 1) {
		ent.suppressed++
		return false, 0
	}
	suppressed := ent.suppressed
	ent.suppressed = 0
	return true, suppressed
}

func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Throttle) Cleanup() {
	cutoff := time.Now().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	for k, ent := range t.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (t *Throttle) StartJanitor(ctx context.Context) {
	if t.cleanupEvery <= 0 {
		return
	}

	tk := time.NewTicker(t.cleanupEvery)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				t.Cleanup()
			}
		}
	}()
}
