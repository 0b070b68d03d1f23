package infra

import (
	"context"
	"sync"

	"security-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed  int64
	Denied   int64
	Blocked  int64
	FailOpen int64
}

func (c *Counters) add(ev domain.StatsEvent) {
	switch outcome(ev) {
	case "fail_open":
		c.FailOpen++
	case "allowed":
		c.Allowed++
	case "blocked":
		c.Blocked++
	default:
		c.Denied++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byClass map[string]Counters
	byID    map[string]Counters

	trackIdentifiers bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackIdentifiers(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackIdentifiers = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byClass: make(map[string]Counters),
		byID:    make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	c := s.byClass[ev.Class]
	c.add(ev)
	s.byClass[ev.Class] = c

	if s.trackIdentifiers {
		k := s.byID[ev.Identifier]
		k.add(ev)
		s.byID[ev.Identifier] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByClass() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byClass))
	for k, v := range s.byClass {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByIdentifier() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byID))
	for k, v := range s.byID {
		out[k] = v
	}
	return out
}
