package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-params/internal/config"
	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/engine"
)

const (
	effectiveParamsKeyPrefix = "params:effective"
	paramsScanBatchSize      = 100
)

// EffectiveParamsCache memoizes resolutions. Keys embed the snapshot version,
// so an entry can never be served against a newer configuration.
type EffectiveParamsCache interface {
	Get(ctx context.Context, version uint64, q engine.Query) (*domain.EffectiveParameters, bool, error)
	Set(ctx context.Context, version uint64, q engine.Query, params domain.EffectiveParameters) error
	InvalidateAll(ctx context.Context) error
	Close() error
}

type redisParamsCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopParamsCache struct{}

func NewEffectiveParamsCache(cfg config.CacheConfig) (EffectiveParamsCache, error) {
	if !cfg.Enabled {
		return &noopParamsCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisParamsCache{
		client: client,
		ttl:    ttl,
	}, nil
}

// NewRedisParamsCache wraps an existing client.
func NewRedisParamsCache(client *redis.Client, ttl time.Duration) EffectiveParamsCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisParamsCache{client: client, ttl: ttl}
}

func NewNoopParamsCache() EffectiveParamsCache {
	return &noopParamsCache{}
}

func (c *redisParamsCache) Get(ctx context.Context, version uint64, q engine.Query) (*domain.EffectiveParameters, bool, error) {
	key := buildEffectiveParamsKey(version, q)

	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var params domain.EffectiveParameters
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, false, fmt.Errorf("decode effective params cache: %w", err)
	}

	return &params, true, nil
}

func (c *redisParamsCache) Set(ctx context.Context, version uint64, q engine.Query, params domain.EffectiveParameters) error {
	key := buildEffectiveParamsKey(version, q)
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode effective params cache: %w", err)
	}

	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisParamsCache) InvalidateAll(ctx context.Context) error {
	removed, err := unlinkMatching(ctx, c.client, effectiveParamsKeyPrefix, paramsScanBatchSize)
	if err != nil {
		return err
	}
	log.Debug().Int("keys", removed).Msg("effective params cache invalidated")
	return nil
}

func (c *redisParamsCache) Close() error {
	return c.client.Close()
}

func (n *noopParamsCache) Get(ctx context.Context, version uint64, q engine.Query) (*domain.EffectiveParameters, bool, error) {
	return nil, false, nil
}

func (n *noopParamsCache) Set(ctx context.Context, version uint64, q engine.Query, params domain.EffectiveParameters) error {
	return nil
}

func (n *noopParamsCache) InvalidateAll(ctx context.Context) error {
	return nil
}

func (n *noopParamsCache) Close() error {
	return nil
}

func buildEffectiveParamsKey(version uint64, q engine.Query) string {
	return fmt.Sprintf("%s:v%d:%s", effectiveParamsKeyPrefix, version, queryHash(q))
}

func queryHash(q engine.Query) string {
	parts := []string{
		"store=" + strings.TrimSpace(q.StoreID),
		"product=" + strings.TrimSpace(q.ProductCode),
		"category=" + domain.NormalizeCategory(q.Category),
		"class=" + strings.ToUpper(strings.TrimSpace(string(q.Class))),
	}

	raw := strings.Join(parts, "|")
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
