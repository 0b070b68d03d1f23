// Package compliance enfileira e executa as operações de privacidade (exportação e
// exclusão de dados de um usuário) através da fila segura.
//
// O Producer assina o token do job antes de montar o payload; os handlers rodam no
// Worker e delegam o trabalho real a um Exporter / Deleter da camada de dados.
package compliance
