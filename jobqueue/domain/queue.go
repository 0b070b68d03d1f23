package domain

import (
	"context"
	"time"
)

const DefaultMaxAttempts = 3

type EnqueueOptions struct {
	UserID      string
	MaxAttempts int
}

type EnqueueOption func(*EnqueueOptions)

func WithUserID(id string) EnqueueOption {
	return func(o *EnqueueOptions) { o.UserID = id }
}

func WithMaxAttempts(n int) EnqueueOption {
	return func(o *EnqueueOptions) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

// Queue é a fila segura de jobs.
//
// Dequeue devolve (nil, nil) quando não há job utilizável: timeout, job expirado,
// registro ausente/corrompido ou token inválido. Erros de Store sempre propagam.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload Payload, opts ...EnqueueOption) (string, error)
	Dequeue(ctx context.Context, jobType string) (*Job, error)
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID string, cause error) error
	GetJobStatus(ctx context.Context, jobID string) (*Job, error)
	CleanupExpiredJobs(ctx context.Context) (int, error)
	RecoverStuckJobs(ctx context.Context, jobType string, visibilityTimeout time.Duration) (int, error)
}

// TokenSigner gera tokens para produtores. A verificação fica dentro da fila.
type TokenSigner interface {
	GenerateJobToken(requestID, jobType string) Token
}
