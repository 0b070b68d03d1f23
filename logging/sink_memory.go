package logging

import (
	"context"
	"sync"
)

// MemorySink guarda as entradas em memória. Útil para testes e desenvolvimento.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Write(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *MemorySink) Close() error { return nil }

func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ByEvent filtra as entradas pelo nome do evento.
func (s *MemorySink) ByEvent(event string) []Entry {
	var out []Entry
	for _, e := range s.Entries() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
