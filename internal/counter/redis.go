package counter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RedisStore implements Store on a shared Redis instance. Atomicity comes
// from Redis itself (INCR / INCRBYFLOAT), so concurrent transactions never
// lose increments.
type RedisStore struct {
	client  *redis.Client
	log     zerolog.Logger
	timeout time.Duration

	// OnDegraded, when set, is called once per failed-open operation.
	OnDegraded func(op string)
}

// NewRedisStore wraps an existing Redis client. opTimeout bounds each
// round-trip; zero means 3 seconds.
func NewRedisStore(client *redis.Client, log zerolog.Logger, opTimeout time.Duration) *RedisStore {
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	return &RedisStore{
		client:  client,
		log:     log,
		timeout: opTimeout,
	}
}

func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.degraded("increment", key, err)
		return 0, false
	}
	return incr.Val(), true
}

func (s *RedisStore) GetInt(ctx context.Context, key string) (int64, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		s.degraded("get_int", key, err)
		return 0, false
	}
	return n, true
}

func (s *RedisStore) AddAndGet(ctx context.Context, key string, delta decimal.Decimal, ttl time.Duration) (decimal.Decimal, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	f, _ := delta.Float64()
	pipe := s.client.TxPipeline()
	incr := pipe.IncrByFloat(ctx, key, f)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.degraded("add_and_get", key, err)
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(incr.Val()), true
}

func (s *RedisStore) GetDecimal(ctx context.Context, key string) (decimal.Decimal, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return decimal.Zero, false
	}
	if err != nil {
		s.degraded("get_decimal", key, err)
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		s.degraded("get_decimal", key, err)
		return decimal.Zero, false
	}
	return d, true
}

func (s *RedisStore) degraded(op, key string, err error) {
	s.log.Warn().Str("op", op).Str("key", key).Err(err).
		Msg("counter store degraded, failing open")
	if s.OnDegraded != nil {
		s.OnDegraded(op)
	}
}
