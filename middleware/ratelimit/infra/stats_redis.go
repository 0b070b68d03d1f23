package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"security-gateway/middleware/ratelimit/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl aplica apenas em chaves de série temporal / por identifier.
	// total e por classe são cumulativos e não expiram.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackIdentifiers bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackIdentifiers(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackIdentifiers = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func outcome(ev domain.StatsEvent) string {
	switch {
	case ev.FailOpen:
		return "fail_open"
	case ev.Allowed:
		return "allowed"
	case ev.Blocked:
		return "blocked"
	}
	return "denied"
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := outcome(ev)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if ev.Class != "" {
		pipe.HIncrBy(ctx, s.classKey(ev.Class), field, 1)
	}

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ev.Method != "" || ev.Path != "" {
		routeField := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
		if routeField != "" {
			pipe.HIncrBy(ctx, s.prefix+":route", routeField+":"+field, 1)
		}
	}

	if s.trackIdentifiers {
		id := strings.TrimSpace(ev.Identifier)
		if id != "" {
			idKey := s.prefix + ":id:" + id
			pipe.HIncrBy(ctx, idKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, idKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// ClassCounters lê os contadores cumulativos de uma classe ("" = total geral).
func (s *RedisStatsStore) ClassCounters(ctx context.Context, class string) (map[string]int64, error) {
	key := s.prefix + ":total"
	if class != "" {
		key = s.classKey(class)
	}
	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "ratelimit: read stats")
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[k] = n
	}
	return out, nil
}

func (s *RedisStatsStore) classKey(class string) string {
	return s.prefix + ":class:" + class
}
