// utilitário pequeno para formatação rápida/consistente de valores numéricos em headers.
//    Evita puxar fmt (que é mais "pesado" e genérico) só para formatação simples

package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

func formatUnix(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }

// retryAfterSeconds arredonda para cima: Retry-After nunca deve mandar o cliente voltar cedo demais.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
