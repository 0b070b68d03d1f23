package domain

import (
	"fmt"
	"sort"
	"time"
)

// DefaultClassName é a classe usada quando o nome pedido não existe no registry.
const DefaultClassName = "default"

// Registry é a configuração imutável de classes de limite.
//
// É injetado no Service na construção; várias configurações podem coexistir (ex: testes).
type Registry struct {
	version  string
	classes  map[string]LimitClass
	fallback LimitClass
}

// NewRegistry valida as classes e monta um registry. Uma classe chamada DefaultClassName
// é obrigatória: ela é o fallback para nomes desconhecidos.
func NewRegistry(version string, classes ...LimitClass) (*Registry, error) {
	r := &Registry{
		version: version,
		classes: make(map[string]LimitClass, len(classes)),
	}
	for _, c := range classes {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		if _, dup := r.classes[c.Name]; dup {
			return nil, fmt.Errorf("%s: %w", c.Name, ErrDuplicateClass)
		}
		r.classes[c.Name] = c
	}
	def, ok := r.classes[DefaultClassName]
	if !ok {
		return nil, ErrNoDefaultClass
	}
	r.fallback = def
	return r, nil
}

// MustRegistry é NewRegistry para configurações estáticas conhecidas.
func MustRegistry(version string, classes ...LimitClass) *Registry {
	r, err := NewRegistry(version, classes...)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRegistry devolve as classes embarcadas no binário.
func DefaultRegistry() *Registry {
	return MustRegistry("2026-10-01",
		LimitClass{Name: DefaultClassName, Interval: time.Minute, MaxRequests: 60},
		LimitClass{Name: "api:general", Interval: time.Minute, MaxRequests: 100},
		LimitClass{Name: "api:public", Interval: time.Minute, MaxRequests: 30},
		LimitClass{Name: "api:auth", Interval: 15 * time.Minute, MaxRequests: 5, BlockDuration: 15 * time.Minute},
		LimitClass{Name: "api:webhook", Interval: time.Minute, MaxRequests: 50},
		LimitClass{Name: "api:upload", Interval: time.Hour, MaxRequests: 20},
		LimitClass{Name: "action:login", Interval: 15 * time.Minute, MaxRequests: 5, BlockDuration: 30 * time.Minute},
		LimitClass{Name: "action:signup", Interval: time.Hour, MaxRequests: 3, BlockDuration: time.Hour},
		LimitClass{Name: "action:password_reset", Interval: time.Hour, MaxRequests: 3, BlockDuration: time.Hour},
		LimitClass{Name: "action:email_send", Interval: time.Hour, MaxRequests: 10},
		LimitClass{Name: "action:data_export", Interval: 24 * time.Hour, MaxRequests: 3},
		LimitClass{Name: "action:data_deletion", Interval: 24 * time.Hour, MaxRequests: 1, BlockDuration: 24 * time.Hour},
	)
}

func (r *Registry) Version() string { return r.version }

// Lookup devolve a classe exata, sem fallback.
func (r *Registry) Lookup(name string) (LimitClass, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Resolve devolve a classe pedida ou a classe default.
func (r *Registry) Resolve(name string) LimitClass {
	if c, ok := r.classes[name]; ok {
		return c
	}
	return r.fallback
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.classes))
	for name := range r.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
