// Package application contém o Worker da fila segura.
//
// O Worker retira jobs por tipo, executa o handler registrado com concorrência limitada
// por um SlotPool e fecha o ciclo com CompleteJob/FailJob. Também roda, periodicamente,
// a recuperação de jobs presos em processing e a limpeza de registros expirados.
package application
