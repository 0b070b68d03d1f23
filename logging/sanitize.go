package logging

import "strings"

// Redacted substitui o valor de campos cujo nome bate com a deny-list.
const Redacted = "[REDACTED]"

// DefaultRedactFields é a deny-list padrão. A comparação é por substring, sem caixa:
// "accessToken", "X-Api-Key" e "session_cookie" são todos redigidos.
var DefaultRedactFields = []string{"password", "token", "secret", "key", "auth", "cookie"}

type redactor struct {
	patterns []string
}

func newRedactor(patterns []string) redactor {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return redactor{patterns: out}
}

func (r redactor) sensitive(name string) bool {
	name = strings.ToLower(name)
	for _, p := range r.patterns {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// fields devolve uma cópia profunda de in com os campos sensíveis redigidos.
func (r redactor) fields(in Fields) Fields {
	if len(in) == 0 {
		return nil
	}
	out := make(Fields, len(in))
	for k, v := range in {
		if r.sensitive(k) {
			out[k] = Redacted
			continue
		}
		out[k] = r.value(v)
	}
	return out
}

func (r redactor) value(v any) any {
	switch t := v.(type) {
	case Fields:
		return r.fields(t)
	case map[string]any:
		return map[string]any(r.fields(Fields(t)))
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			if r.sensitive(k) {
				out[k] = Redacted
				continue
			}
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = r.value(t[i])
		}
		return out
	case error:
		return t.Error()
	}
	return v
}
