// Package redisclient cria o cliente Redis compartilhado pelo processo.
// O ciclo de vida (Close) é de quem chamou New.
package redisclient

import (
	"context"
	"strings"
	"time"

	"security-gateway/internal/config"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

// New devolve um cliente já validado com PING. Em falha o cliente é fechado.
func New(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb, err := Open(ctx, cfg)
	if err != nil && rdb != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, err
}

// Open é como New, mas devolve o cliente mesmo quando o PING falha: o go-redis reconecta
// sozinho, e quem chama decide se segue degradado ou aborta. Só endereço vazio dá cliente nil.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return rdb, errors.Wrapf(err, "redis ping %s", cfg.Addr)
	}
	return rdb, nil
}
