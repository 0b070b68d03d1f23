// Package instrumentation expõe os contadores OpenTelemetry do rate limit, da fila
// segura de jobs e dos eventos de segurança, e monta o MeterProvider do processo
// (prometheus, stdout ou noop).
//
// Um *Metrics nil é válido e não registra nada.
package instrumentation
