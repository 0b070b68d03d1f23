package infra

import (
	"context"
	"strconv"
	"strings"
	"time"

	"security-gateway/middleware/ratelimit/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter implementa domain.Limiter com contadores de janela fixa no Redis.
//
// Chaves:
//
//	<prefix>:<class>:<identifier>        contador, TTL = interval
//	<prefix>:block:<class>:<identifier>  blockedUntil em unix ms, TTL = blockDuration
//
// Não há lock em processo: a exclusão mútua entre processos é do Redis.
type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

var _ domain.Limiter = (*RedisLimiter)(nil)

type LimiterOption func(*RedisLimiter)

func WithKeyPrefix(prefix string) LimiterOption {
	return func(l *RedisLimiter) { l.prefix = strings.Trim(prefix, ":") }
}

// WithClock troca a fonte de tempo (testes).
func WithClock(now func() time.Time) LimiterOption {
	return func(l *RedisLimiter) { l.now = now }
}

func NewRedisLimiter(rdb *redis.Client, opts ...LimiterOption) *RedisLimiter {
	l := &RedisLimiter{
		rdb:    rdb,
		prefix: "ratelimit",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLimiter) CounterKey(class, identifier string) string {
	return l.prefix + ":" + class + ":" + identifier
}

func (l *RedisLimiter) BlockKey(class, identifier string) string {
	return l.prefix + ":block:" + class + ":" + identifier
}

func (l *RedisLimiter) Check(ctx context.Context, identifier string, class domain.LimitClass) (domain.Decision, error) {
	now := l.now()
	blockKey := l.BlockKey(class.Name, identifier)

	// 1) bloqueio ativo sempre vence o contador
	raw, err := l.rdb.Get(ctx, blockKey).Result()
	switch {
	case err == redis.Nil:
	case err != nil:
		return domain.Decision{}, errors.Wrap(err, "ratelimit: read block")
	default:
		if until, ok := parseUnixMilli(raw); ok && until.After(now) {
			return domain.Decision{
				Allowed:      false,
				Limit:        class.MaxRequests,
				Remaining:    0,
				ResetAt:      until,
				BlockedUntil: until,
				RetryAfter:   until.Sub(now),
			}, nil
		}
		// expirado (ou ilegível): remove de forma preguiçosa
		if err := l.rdb.Del(ctx, blockKey).Err(); err != nil {
			return domain.Decision{}, errors.Wrap(err, "ratelimit: drop stale block")
		}
	}

	// 2) SET NX PX + INCR na mesma transação: o prazo nasce com a janela e não é
	// renovado pelos hits seguintes, e nunca fica contador sem TTL
	counterKey := l.CounterKey(class.Name, identifier)
	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, counterKey, 0, class.Interval)
		incr = pipe.Incr(ctx, counterKey)
		pttl = pipe.PTTL(ctx, counterKey)
		return nil
	})
	if err != nil {
		return domain.Decision{}, errors.Wrap(err, "ratelimit: increment")
	}

	count := int(incr.Val())
	resetAt := now.Add(class.Interval)
	switch ttl := pttl.Val(); {
	case ttl > 0:
		resetAt = now.Add(ttl)
	case ttl == -1:
		// chave antiga sem TTL
		if err := l.rdb.PExpire(ctx, counterKey, class.Interval).Err(); err != nil {
			return domain.Decision{}, errors.Wrap(err, "ratelimit: set window expiry")
		}
	}

	// 4) dentro do limite
	if count <= class.MaxRequests {
		return domain.Decision{
			Allowed:   true,
			Limit:     class.MaxRequests,
			Remaining: class.MaxRequests - count,
			ResetAt:   resetAt,
		}, nil
	}

	// 3) estourou
	dec := domain.Decision{
		Allowed:    false,
		Limit:      class.MaxRequests,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: resetAt.Sub(now),
	}
	if class.BlockDuration <= 0 {
		return dec, nil
	}

	until := now.Add(class.BlockDuration)
	if err := l.rdb.Set(ctx, blockKey, strconv.FormatInt(until.UnixMilli(), 10), class.BlockDuration).Err(); err != nil {
		return domain.Decision{}, errors.Wrap(err, "ratelimit: write block")
	}
	dec.ResetAt = until
	dec.BlockedUntil = until
	dec.BlockStarted = true
	dec.RetryAfter = class.BlockDuration
	return dec, nil
}

// Reset apaga contador e bloqueio (override administrativo).
func (l *RedisLimiter) Reset(ctx context.Context, identifier string, class domain.LimitClass) error {
	err := l.rdb.Del(ctx, l.CounterKey(class.Name, identifier), l.BlockKey(class.Name, identifier)).Err()
	return errors.Wrap(err, "ratelimit: reset")
}

// Stats lê o estado atual sem incrementar nada (MGET + PTTL).
func (l *RedisLimiter) Stats(ctx context.Context, identifier string, class domain.LimitClass) (domain.Usage, error) {
	now := l.now()
	counterKey := l.CounterKey(class.Name, identifier)

	var (
		mget *redis.SliceCmd
		pttl *redis.DurationCmd
	)
	_, err := l.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		mget = pipe.MGet(ctx, counterKey, l.BlockKey(class.Name, identifier))
		pttl = pipe.PTTL(ctx, counterKey)
		return nil
	})
	if err != nil {
		return domain.Usage{}, errors.Wrap(err, "ratelimit: stats")
	}

	u := domain.Usage{
		Class:      class.Name,
		Identifier: identifier,
		Limit:      class.MaxRequests,
		Remaining:  class.MaxRequests,
	}
	vals := mget.Val()
	if s, ok := vals[0].(string); ok {
		if n, err := strconv.Atoi(s); err == nil {
			u.Count = n
			u.Remaining = max(class.MaxRequests-n, 0)
		}
	}
	if ttl := pttl.Val(); ttl > 0 {
		u.ResetAt = now.Add(ttl)
	}
	if s, ok := vals[1].(string); ok {
		if until, ok := parseUnixMilli(s); ok && until.After(now) {
			u.BlockedUntil = until
			u.Remaining = 0
		}
	}
	return u, nil
}

func parseUnixMilli(s string) (time.Time, bool) {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
