package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-params/internal/config"
)

const (
	defaultCacheTTL = 5 * time.Minute
	pingTimeout     = 5 * time.Second

	// Cache reads sit on the resolve path; a slow redis must not be slower
	// than resolving from the snapshot.
	commandTimeout = 300 * time.Millisecond

	redisClientName = "replenishment-params"
)

func newRedisClient(cfg config.CacheConfig) (*redis.Client, time.Duration, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, 0, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, 0, fmt.Errorf("redis ping %s failed: %w", opts.Addr, err)
	}

	ttl := ttlFromConfig(cfg)
	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Dur("ttl", ttl).Msg("effective params cache connected")
	return client, ttl, nil
}

func ttlFromConfig(cfg config.CacheConfig) time.Duration {
	if cfg.ParamsTTLSeconds <= 0 {
		return defaultCacheTTL
	}
	return time.Duration(cfg.ParamsTTLSeconds) * time.Second
}

// buildRedisOptions prefers REDIS_URL and falls back to host/port settings.
func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	var opts *redis.Options
	if cfg.RedisURL != "" {
		parsed, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     net.JoinHostPort(valueOr(cfg.RedisHost, "127.0.0.1"), valueOr(cfg.RedisPort, "6379")),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}
	}

	opts.ClientName = redisClientName
	opts.ReadTimeout = commandTimeout
	opts.WriteTimeout = commandTimeout
	return opts, nil
}

// unlinkMatching removes every key under prefix, batchSize keys per UNLINK.
func unlinkMatching(ctx context.Context, client *redis.Client, prefix string, batchSize int64) (int, error) {
	iter := client.Scan(ctx, 0, prefix+"*", batchSize).Iterator()

	var (
		batch   = make([]string, 0, batchSize)
		removed int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := client.Unlink(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("redis unlink failed: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if int64(len(batch)) >= batchSize {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan failed: %w", err)
	}
	if err := flush(); err != nil {
		return removed, err
	}
	return removed, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
