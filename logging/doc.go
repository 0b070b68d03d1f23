// Package logging implementa o logger estruturado usado pelo rate limit, pela fila de jobs
// e pelo error handler.
//
// Entradas são sanitizadas (campos sensíveis viram "[REDACTED]") antes de entrar no buffer
// em memória. O buffer é descarregado para os sinks (console, arquivo, remoto) por uma
// goroutine de Run, quando enche, ou explicitamente via Flush/Close no shutdown.
//
// O buffer é local ao processo: perda em crash é aceita (log é best-effort).
package logging
