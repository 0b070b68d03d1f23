package ratelimit

import (
	"net"
	"net/http"
	"sort"
	"strings"
)

// KeyFunc extrai o identificador do cliente. O valor já vem com namespace ("ip:", "key:").
type KeyFunc func(r *http.Request) string

// ClassFunc escolhe a classe de limite da requisição.
type ClassFunc func(r *http.Request) string

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return "key:" + v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if ip := strings.TrimSpace(parts[0]); ip != "" {
					return "ip:" + ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return "ip:" + host
		}
		if r.RemoteAddr != "" {
			return "ip:" + r.RemoteAddr
		}
		return "ip:unknown"
	}
}

// StaticClass usa sempre a mesma classe.
func StaticClass(name string) ClassFunc {
	return func(*http.Request) string { return name }
}

// PathClasses escolhe a classe pelo prefixo de path mais longo; sem match usa fallback.
func PathClasses(routes map[string]string, fallback string) ClassFunc {
	prefixes := make([]string, 0, len(routes))
	for p := range routes {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	return func(r *http.Request) string {
		for _, p := range prefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				return routes[p]
			}
		}
		return fallback
	}
}
