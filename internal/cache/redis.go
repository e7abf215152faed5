package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared ephemeral counter store. It satisfies
// guard.CounterStore. Every operation runs under a short timeout so a
// lagging Redis degrades into the guard's fail-open path instead of
// stalling request handling.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	opTimeout time.Duration
	metrics   *storeMetrics
}

type storeMetrics struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	errors  prometheus.Counter
	latency prometheus.Histogram
}

var sharedMetrics = &storeMetrics{
	hits: promauto.NewCounter(prometheus.CounterOpts{
		Name: "counter_store_hits_total",
		Help: "Total number of counter store hits",
	}),
	misses: promauto.NewCounter(prometheus.CounterOpts{
		Name: "counter_store_misses_total",
		Help: "Total number of counter store misses",
	}),
	errors: promauto.NewCounter(prometheus.CounterOpts{
		Name: "counter_store_errors_total",
		Help: "Total number of counter store errors",
	}),
	latency: promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "counter_store_operation_duration_seconds",
		Help:    "Counter store operation latency",
		Buckets: prometheus.DefBuckets,
	}),
}

// Config defines the Redis connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	OpTimeout    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg Config) (*RedisStore, error) {
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		opTimeout: cfg.OpTimeout,
		metrics:   sharedMetrics,
	}, nil
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// Get retrieves a value. A missing key is reported via the second return,
// not as an error.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	timer := prometheus.NewTimer(s.metrics.latency)
	defer timer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.metrics.misses.Inc()
			return "", false, nil
		}
		s.metrics.errors.Inc()
		return "", false, err
	}
	s.metrics.hits.Inc()
	return val, true, nil
}

// SetEX stores a value with a TTL.
func (s *RedisStore) SetEX(ctx context.Context, key, value string, ttl time.Duration) error {
	timer := prometheus.NewTimer(s.metrics.latency)
	defer timer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.keyPrefix+key, value, ttl).Err(); err != nil {
		s.metrics.errors.Inc()
		return err
	}
	return nil
}

// Incr atomically increments a counter, creating it at 1 without a TTL.
func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	timer := prometheus.NewTimer(s.metrics.latency)
	defer timer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.client.Incr(ctx, s.keyPrefix+key).Result()
	if err != nil {
		s.metrics.errors.Inc()
		return 0, err
	}
	return n, nil
}

// Expire sets a TTL on an existing key.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Expire(ctx, s.keyPrefix+key, ttl).Err(); err != nil {
		s.metrics.errors.Inc()
		return err
	}
	return nil
}

// TTL returns a key's remaining lifetime. go-redis reports a missing key as
// -2s and a key without expiry as -1s; both come back negative, which the
// guard treats as "no live entry".
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ttl, err := s.client.TTL(ctx, s.keyPrefix+key).Result()
	if err != nil {
		s.metrics.errors.Inc()
		return 0, err
	}
	return ttl, nil
}

// Del removes keys and returns how many existed.
func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	timer := prometheus.NewTimer(s.metrics.latency)
	defer timer.ObserveDuration()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.keyPrefix + k
	}
	removed, err := s.client.Del(ctx, full...).Result()
	if err != nil {
		s.metrics.errors.Inc()
		return 0, err
	}
	return removed, nil
}

// Scan returns keys matching a glob pattern, using SCAN rather than KEYS so
// large keyspaces don't stall Redis. Returned keys have the prefix stripped
// so they can be passed back to the other methods.
func (s *RedisStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 4*s.opTimeout)
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(s.keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		s.metrics.errors.Inc()
		return nil, err
	}
	return keys, nil
}

// Close closes the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
