package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http nem de Redis.

import (
	"context"
	"time"
)

// LimitClass é uma política nomeada de rate limit (ex: "api:auth", "action:login").
//
// Janela fixa de Interval com no máximo MaxRequests chamadas. Se BlockDuration > 0,
// estourar o limite grava um bloqueio punitivo que vale até expirar, independente do contador.
type LimitClass struct {
	Name          string
	Interval      time.Duration
	MaxRequests   int
	BlockDuration time.Duration
}

func (c LimitClass) Validate() error {
	if c.Name == "" {
		return ErrClassName
	}
	if c.Interval <= 0 {
		return ErrClassInterval
	}
	if c.MaxRequests < 1 {
		return ErrClassMaxRequests
	}
	if c.BlockDuration < 0 {
		return ErrClassBlockDuration
	}
	return nil
}

// Decision é o resultado de um Check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time

	// BlockedUntil só é preenchido quando existe um bloqueio ativo.
	BlockedUntil time.Time
	// BlockStarted indica que esta chamada foi a que criou o bloqueio.
	BlockStarted bool

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	RetryAfter time.Duration

	// FailOpen indica que o Store falhou e a chamada foi liberada por política.
	FailOpen bool
}

func (d Decision) Blocked() bool { return !d.BlockedUntil.IsZero() }

// Usage é uma leitura do estado atual, sem efeito colateral.
type Usage struct {
	Class        string
	Identifier   string
	Count        int
	Limit        int
	Remaining    int
	ResetAt      time.Time
	BlockedUntil time.Time
}

func (u Usage) Blocked() bool { return !u.BlockedUntil.IsZero() }

// Limiter decide allow/deny para um par (identifier, class).
//
// Implementações devem garantir atomicidade entre processos (ex: MULTI/EXEC no Redis).
// Erros de comunicação com o Store são devolvidos; a política fail-open é da camada application.
type Limiter interface {
	Check(ctx context.Context, identifier string, class LimitClass) (Decision, error)
	Reset(ctx context.Context, identifier string, class LimitClass) error
	Stats(ctx context.Context, identifier string, class LimitClass) (Usage, error)
}
