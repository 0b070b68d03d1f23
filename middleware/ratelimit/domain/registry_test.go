package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewRegistry_RequiresDefaultClass(t *testing.T) {
	_, err := NewRegistry("v1", LimitClass{Name: "api:auth", Interval: time.Minute, MaxRequests: 5})
	if !errors.Is(err, ErrNoDefaultClass) {
		t.Fatalf("expected ErrNoDefaultClass, got %v", err)
	}
}

func TestNewRegistry_RejectsInvalidClass(t *testing.T) {
	cases := []struct {
		name  string
		class LimitClass
		want  error
	}{
		{"zero interval", LimitClass{Name: "x", MaxRequests: 1}, ErrClassInterval},
		{"zero max", LimitClass{Name: "x", Interval: time.Second}, ErrClassMaxRequests},
		{"negative block", LimitClass{Name: "x", Interval: time.Second, MaxRequests: 1, BlockDuration: -time.Second}, ErrClassBlockDuration},
		{"no name", LimitClass{Interval: time.Second, MaxRequests: 1}, ErrClassName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRegistry("v1", tc.class)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	c := LimitClass{Name: DefaultClassName, Interval: time.Second, MaxRequests: 1}
	if _, err := NewRegistry("v1", c, c); !errors.Is(err, ErrDuplicateClass) {
		t.Fatalf("expected ErrDuplicateClass, got %v", err)
	}
}

func TestRegistry_ResolveFallsBackToDefault(t *testing.T) {
	r := DefaultRegistry()

	if got := r.Resolve("api:auth"); got.Name != "api:auth" || got.BlockDuration == 0 {
		t.Fatalf("expected api:auth with block, got %+v", got)
	}
	if got := r.Resolve("does:not:exist"); got.Name != DefaultClassName {
		t.Fatalf("expected fallback to default, got %q", got.Name)
	}
	if _, ok := r.Lookup("does:not:exist"); ok {
		t.Fatalf("expected Lookup to miss")
	}
}

func TestRegistry_CopiesAreIndependent(t *testing.T) {
	a := DefaultRegistry()
	b := MustRegistry("test", LimitClass{Name: DefaultClassName, Interval: time.Second, MaxRequests: 2})

	if a.Resolve("x").MaxRequests == b.Resolve("x").MaxRequests {
		t.Fatalf("expected registries to hold independent configuration")
	}
	if b.Version() != "test" {
		t.Fatalf("expected version test, got %q", b.Version())
	}
}
