package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultKeyFunc_PrefersHeaderWhenSet(t *testing.T) {
	fn := DefaultKeyFunc("X-Client", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Client", " client-123 ")

	if got := fn(r); got != "key:client-123" {
		t.Fatalf("expected header key, got %q", got)
	}
}

func TestDefaultKeyFunc_TrustXForwardedForUsesFirstIP(t *testing.T) {
	fn := DefaultKeyFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	if got := fn(r); got != "ip:1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}

func TestDefaultKeyFunc_IgnoresXForwardedForWhenUntrusted(t *testing.T) {
	fn := DefaultKeyFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := fn(r); got != "ip:10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestPathClasses_LongestPrefixWins(t *testing.T) {
	fn := PathClasses(map[string]string{
		"/api/":      "api:general",
		"/api/auth/": "api:auth",
	}, "default")

	cases := map[string]string{
		"/api/auth/login": "api:auth",
		"/api/users":      "api:general",
		"/health":         "default",
	}
	for path, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://example"+path, nil)
		if got := fn(r); got != want {
			t.Fatalf("%s: expected %q, got %q", path, want, got)
		}
	}
}

func TestRetryAfterSeconds_RoundsUp(t *testing.T) {
	if got := retryAfterSeconds(0); got != 1 {
		t.Fatalf("expected 1 for zero, got %d", got)
	}
	if got := retryAfterSeconds(2500 * 1e6); got != 3 {
		t.Fatalf("expected 3 for 2.5s, got %d", got)
	}
}
