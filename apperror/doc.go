// Package apperror define a taxonomia de erros expostos a clientes HTTP e o handler que os
// serializa num envelope JSON uniforme.
//
// Todo erro tem um Kind (client, security, server, external, business), um Code estável e um
// status HTTP. Erros desconhecidos viram INTERNAL_ERROR; em produção a mensagem original,
// a causa e o stack não saem na resposta.
package apperror
