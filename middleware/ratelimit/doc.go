// Package ratelimit fornece o adapter HTTP (net/http) para o rate limit distribuído.
//
// Visão geral (camadas):
//
//   - domain: LimitClass, Registry, Decision e contratos (sem dependência de net/http)
//   - application: Service.Decide com política fail-open, estatísticas e eventos de segurança
//   - infra: RedisLimiter (janela fixa + bloqueio punitivo), stats stores, registry em YAML
//   - ratelimit (este pacote): middleware HTTP + extração de chave/classe + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai o identificador do cliente (header/XFF/IP) e a classe de limite da rota
//  2. Chama a camada application para obter a decisão
//  3. Sempre devolve X-RateLimit-Limit, X-RateLimit-Remaining e X-RateLimit-Reset
//  4. Se negado, responde 429 com Retry-After e o envelope JSON de erro
//  5. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente dos binários (cmd/gateway) controlam o comportamento,
// como RATE_ENABLED, RATE_KEY_HEADER, TRUST_XFF e RATE_LIMIT_CLASSES_FILE.
package ratelimit
