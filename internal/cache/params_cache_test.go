package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-params/internal/config"
	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/engine"
)

func newTestCache(t *testing.T) (EffectiveParamsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisParamsCache(client, time.Minute), mr
}

func TestBuildEffectiveParamsKey(t *testing.T) {
	q := engine.Query{StoreID: "T1", ProductCode: "P1", Category: " frutas  y verduras", Class: domain.ClassA}
	same := engine.Query{StoreID: "T1", ProductCode: "P1", Category: "FRUTAS Y VERDURAS", Class: "a"}

	assert.Equal(t, buildEffectiveParamsKey(3, q), buildEffectiveParamsKey(3, same))
	assert.NotEqual(t, buildEffectiveParamsKey(3, q), buildEffectiveParamsKey(4, q))
	assert.NotEqual(t, buildEffectiveParamsKey(3, q), buildEffectiveParamsKey(3, engine.Query{StoreID: "T2", ProductCode: "P1", Class: domain.ClassA}))
	assert.True(t, strings.HasPrefix(buildEffectiveParamsKey(3, q), "params:effective:v3:"))
}

func TestRedisParamsCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	q := engine.Query{StoreID: "T1", ProductCode: "P1", Class: domain.ClassB}
	z := 1.65
	params := domain.EffectiveParameters{StoreID: "T1", ProductCode: "P1", Class: domain.ClassB, CoverageDays: 14, ZScore: &z, SnapshotVersion: 2}

	_, hit, err := c.Get(ctx, 2, q)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, 2, q, params))
	got, hit, err := c.Get(ctx, 2, q)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, params, *got)

	_, hit, err = c.Get(ctx, 3, q)
	require.NoError(t, err)
	assert.False(t, hit, "a newer version must miss")

	assert.Equal(t, time.Minute, mr.TTL(buildEffectiveParamsKey(2, q)))
}

func TestRedisParamsCache_InvalidateAll(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		q := engine.Query{StoreID: "T1", ProductCode: string(rune('A' + i)), Class: domain.ClassC}
		require.NoError(t, c.Set(ctx, 1, q, domain.EffectiveParameters{}))
	}
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, c.InvalidateAll(ctx))
	assert.Equal(t, []string{"unrelated"}, mr.Keys())
}

func TestNoopParamsCache(t *testing.T) {
	c, err := NewEffectiveParamsCache(config.CacheConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, 1, engine.Query{}, domain.EffectiveParameters{}))
	_, hit, err := c.Get(ctx, 1, engine.Query{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.InvalidateAll(ctx))
	assert.NoError(t, c.Close())
}

func TestBuildRedisOptions(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{RedisURL: "redis://:pw@cache:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)

	opts, err = buildRedisOptions(config.CacheConfig{RedisPassword: "x"})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opts.Addr)
	assert.Equal(t, redisClientName, opts.ClientName)
	assert.Equal(t, commandTimeout, opts.ReadTimeout)

	_, err = buildRedisOptions(config.CacheConfig{RedisURL: "://bad"})
	assert.Error(t, err)

	assert.Equal(t, defaultCacheTTL, ttlFromConfig(config.CacheConfig{}))
	assert.Equal(t, 30*time.Second, ttlFromConfig(config.CacheConfig{ParamsTTLSeconds: 30}))
}
