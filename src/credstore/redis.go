package credstore

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOptions configure the Redis-backed store.
type RedisOptions struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string
	DB       int
	Prefix   string // key prefix, default "outletwatch:cred:"
}

// redisOptionsFromEnv reads REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, and
// REDIS_CRED_PREFIX, falling back to defaults for any missing values.
func redisOptionsFromEnv() RedisOptions {
	opts := RedisOptions{
		Addr:   "localhost:6379",
		Prefix: "outletwatch:cred:",
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		opts.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		opts.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			opts.DB = db
		}
	}
	if v := os.Getenv("REDIS_CRED_PREFIX"); v != "" {
		opts.Prefix = v
	}
	return opts
}

// Redis stores credentials under a prefixed keyspace so multiple agents can
// share one Redis instance.
type Redis struct {
	client *redis.Client
	addr   string
	prefix string
	logger zerolog.Logger
}

// NewRedis creates a Redis-backed credential store. Call Ping to verify
// connectivity before relying on it.
func NewRedis(opts RedisOptions, logger zerolog.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Redis{
		client: client,
		addr:   opts.Addr,
		prefix: opts.Prefix,
		logger: logger.With().Str("component", "credstore").Logger(),
	}
}

// NewRedisFromEnv builds the store from REDIS_* environment variables.
func NewRedisFromEnv(logger zerolog.Logger) *Redis {
	return NewRedis(redisOptionsFromEnv(), logger)
}

// Addr returns the configured Redis address.
func (r *Redis) Addr() string {
	return r.addr
}

// Ping verifies the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		r.logger.Error().Err(err).Str("key", key).Msg("credential read failed")
		return "", err
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Close releases the underlying Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
