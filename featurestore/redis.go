package featurestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

type RedisOption func(*RedisConfig)

func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) { c.Addr = addr }
}

func WithRedisPassword(pw string) RedisOption {
	return func(c *RedisConfig) { c.Password = pw }
}

func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) { c.DB = db }
}

func WithRedisPrefix(p string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = p }
}

// WithRedisTTL expires payloads after ttl. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(c *RedisConfig) { c.TTL = ttl }
}

// Redis stores payloads under <prefix>:features:<hash>.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(opts ...RedisOption) (*Redis, error) {
	cfg := &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "fxcalib",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (r *Redis) key(hash string) string {
	if r.prefix == "" {
		return "features:" + hash
	}
	return r.prefix + ":features:" + hash
}

func (r *Redis) Put(ctx context.Context, hash string, data []byte) (string, error) {
	if hash == "" {
		return "", fmt.Errorf("featurestore: empty hash")
	}
	key := r.key(hash)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set %s: %w", key, err)
	}
	return "redis://" + key, nil
}

func (r *Redis) Get(ctx context.Context, path string) ([]byte, error) {
	key := strings.TrimPrefix(path, "redis://")
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
