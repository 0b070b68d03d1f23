// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisLimiter: janela fixa com bloqueio punitivo em Redis (INCR+PEXPIRE em MULTI/EXEC)
//   - RedisStatsStore / MemoryStatsStore: estatísticas de decisões
//   - LoadRegistryFile: registry de classes a partir de YAML versionado
package infra
