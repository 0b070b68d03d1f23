// Package infra implementa a fila segura de jobs sobre Redis.
//
// Chaves:
//
//	job:<id>            registro JSON do job (TTL 24h; 7 dias após concluído)
//	queue:<type>        lista de pendentes (LPUSH na entrada, BRPOPLPUSH na saída)
//	processing:<type>   ids retirados por algum worker e ainda não finalizados
//
// Tokens são HMAC-SHA256 (hex) sobre "requestId:jobType:issuedAtMillis" com o segredo do processo.
package infra
