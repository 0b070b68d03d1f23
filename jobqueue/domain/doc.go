// Package domain define o job seguro, seus estados e os contratos da fila.
//
// Aqui não há Redis nem HTTP: só tipos, erros e interfaces consumidos pelo worker
// (application) e implementados pela infra.
package domain
