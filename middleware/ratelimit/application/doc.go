// Package application contém os casos de uso (regras de aplicação) do rate limit.
//
// Ele depende apenas do pacote domain (mais logging/instrumentation) e não conhece net/http
// nem Redis. Ex.: Service.Decide(identifier, class) retorna uma Decision; se o Store falhar,
// a decisão é allow (fail-open) com Remaining = MaxRequests-1.
package application
