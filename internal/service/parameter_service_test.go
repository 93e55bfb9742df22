package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-params/internal/cache"
	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/engine"
	"github.com/andresuchdata/autopo-params/internal/metrics"
	"github.com/andresuchdata/autopo-params/internal/store"
)

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string]domain.EffectiveParameters
	invalidated int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]domain.EffectiveParameters)}
}

func cacheKey(version uint64, q engine.Query) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s", version, q.StoreID, q.ProductCode, q.Category, q.Class)
}

func (c *memoryCache) Get(_ context.Context, version uint64, q engine.Query) (*domain.EffectiveParameters, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[cacheKey(version, q)]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *memoryCache) Set(_ context.Context, version uint64, q engine.Query, params domain.EffectiveParameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(version, q)] = params
	return nil
}

func (c *memoryCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]domain.EffectiveParameters)
	c.invalidated++
	return nil
}

func (c *memoryCache) Close() error { return nil }

type recordingPublisher struct {
	versions []uint64
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, snap *domain.Snapshot) error {
	p.versions = append(p.versions, snap.Version)
	return p.err
}

func newTestService(t *testing.T, opts ...ParameterServiceOption) (*ParameterService, *memoryCache, *metrics.Metrics) {
	t.Helper()
	c := newMemoryCache()
	m := metrics.New(prometheus.NewRegistry())
	opts = append([]ParameterServiceOption{WithMetrics(m)}, opts...)
	return NewParameterService(store.New(), c, opts...), c, m
}

func TestParameterService_ResolveUsesCacheUntilNextWrite(t *testing.T) {
	svc, c, m := newTestService(t)
	ctx := context.Background()
	q := engine.Query{StoreID: "T1", ProductCode: "P1", Class: domain.ClassA}

	first, err := svc.Resolve(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 7, first.CoverageDays)

	_, err = svc.Resolve(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("engine")))

	_, err = svc.UpsertStoreOverride(ctx, domain.StoreOverride{StoreID: "T1", Coverage: domain.CoverageOverrides{A: domain.Set(3)}, Active: true})
	require.NoError(t, err)
	assert.Equal(t, 1, c.invalidated)

	after, err := svc.Resolve(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, after.CoverageDays)
	assert.Equal(t, domain.ProvenanceStore, after.Provenance.CoverageDays)
	assert.Equal(t, uint64(1), after.SnapshotVersion)
}

func TestParameterService_RedisCacheMatchesEngine(t *testing.T) {
	ctx := context.Background()
	st := store.New()
	_, err := st.UpsertStoreOverride(ctx, domain.StoreOverride{StoreID: "T1", LeadTime: domain.Set(3.0), Active: true})
	require.NoError(t, err)
	_, err = st.UpsertCategoryOverride(ctx, domain.CategoryCoverageOverride{
		Category: "Lacteos",
		Coverage: domain.CoverageDays{A: 2, B: 4, C: 6, D: 8},
		Active:   true,
	})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cached := NewParameterService(st, cache.NewRedisParamsCache(client, time.Minute))
	uncached := NewParameterService(st, cache.NewNoopParamsCache())

	// warm the cache with the canonical spelling first
	_, err = cached.Resolve(ctx, engine.Query{StoreID: "T1", ProductCode: "P1", Category: "LACTEOS", Class: domain.ClassA})
	require.NoError(t, err)
	require.NotEmpty(t, mr.Keys())

	queries := []engine.Query{
		{StoreID: "T1", ProductCode: "P1", Category: "LACTEOS", Class: domain.ClassA},
		{StoreID: " T1 ", ProductCode: "P1 ", Category: " lacteos", Class: domain.ClassA},
		{StoreID: "T1", ProductCode: "P1", Category: "lacteos", Class: "a"},
		{StoreID: "T2", ProductCode: "P1", Class: " b"},
		{StoreID: "T1", ProductCode: "P1", Class: "Q"},
	}
	for _, q := range queries {
		for round := 0; round < 2; round++ {
			want, wantErr := uncached.Resolve(ctx, q)
			got, gotErr := cached.Resolve(ctx, q)
			if wantErr != nil {
				assert.ErrorIs(t, gotErr, domain.ErrUnknownClass, "%+v", q)
				assert.ErrorIs(t, wantErr, domain.ErrUnknownClass, "%+v", q)
				continue
			}
			require.NoError(t, gotErr, "%+v", q)
			assert.Equal(t, want, got, "%+v", q)
		}
	}

	spaced, err := cached.Resolve(ctx, engine.Query{StoreID: " T1 ", Class: "a"})
	require.NoError(t, err)
	assert.Equal(t, "T1", spaced.StoreID)
	assert.Equal(t, domain.ClassA, spaced.Class)
	assert.Equal(t, 3.0, spaced.LeadTimeDays)
	assert.Equal(t, domain.ProvenanceStore, spaced.Provenance.LeadTime)
}

func TestParameterService_PublishesEveryCommit(t *testing.T) {
	pub := &recordingPublisher{}
	svc, _, m := newTestService(t, WithPublisher(pub))
	ctx := context.Background()

	_, err := svc.SetGlobal(ctx, 2, 30)
	require.NoError(t, err)
	_, err = svc.SetGlobal(ctx, 0.1, 30)
	require.Error(t, err)
	_, err = svc.SetThresholds(ctx, 10, 20, 30)
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2}, pub.versions)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotVersion))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigWrites.WithLabelValues("global", "rejected")))
}

func TestParameterService_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("bucket unreachable")}
	svc, _, _ := newTestService(t, WithPublisher(pub))

	snap, err := svc.SetGlobal(context.Background(), 2, 30)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, 2.0, svc.Snapshot().Global.LeadTime)
}

func TestParameterService_ResolveUnknownClass(t *testing.T) {
	svc, _, m := newTestService(t)

	_, err := svc.Resolve(context.Background(), engine.Query{StoreID: "T1", Class: "Q"})
	assert.ErrorIs(t, err, domain.ErrUnknownClass)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolveErrors))
}

func TestParameterService_SuggestOrder(t *testing.T) {
	svc, _, m := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpsertCapacityConstraint(ctx, domain.CapacityConstraint{
		StoreID: "T1", ProductCode: "P1", MaxUnits: domain.Set(100), Kind: domain.ConstraintFreezer, Active: true,
	})
	require.NoError(t, err)
	_, err = svc.UpsertCapacityConstraint(ctx, domain.CapacityConstraint{
		StoreID: "T1", ProductCode: "P2", MinDisplayUnits: domain.Set(30), Active: true,
	})
	require.NoError(t, err)

	testCases := []struct {
		name       string
		req        OrderRequest
		final      int
		adjustment engine.Adjustment
		class      domain.ABCClass
	}{
		{name: "capped", req: OrderRequest{StoreID: "T1", ProductCode: "P1", Class: domain.ClassA, RawUnits: 150}, final: 100, adjustment: engine.AdjustmentCappedToMax, class: domain.ClassA},
		{name: "raised", req: OrderRequest{StoreID: "T1", ProductCode: "P2", Class: domain.ClassB, RawUnits: 5}, final: 30, adjustment: engine.AdjustmentRaisedToMin, class: domain.ClassB},
		{name: "untouched untagged", req: OrderRequest{StoreID: "T1", ProductCode: "P3", RawUnits: 50}, final: 50, adjustment: engine.AdjustmentNone, class: domain.ClassD},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := svc.SuggestOrder(ctx, tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.final, out.Clamp.FinalUnits)
			assert.Equal(t, tc.adjustment, out.Clamp.Adjustment)
			assert.Equal(t, tc.class, out.Parameters.Class)
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CapacityAdjustments.WithLabelValues("cappedToMax")))

	_, err = svc.SuggestOrder(ctx, OrderRequest{StoreID: "T1", ProductCode: "P1", RawUnits: -1})
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestParameterService_ResolveBatch(t *testing.T) {
	svc, _, _ := newTestService(t, WithResolveWorkers(3))

	queries := []engine.Query{
		{StoreID: "T1", ProductCode: "P1", Class: domain.ClassA},
		{StoreID: "T1", ProductCode: "P2", Class: domain.ClassD},
	}
	results, err := svc.ResolveBatch(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 7, results[0].CoverageDays)
	assert.Nil(t, results[1].ZScore)
}

func TestParameterService_ZScorePreview(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.Equal(t, 1.92, svc.ZScorePreview(97.25))
	assert.Equal(t, 3.09, svc.ZScorePreview(100))
}
