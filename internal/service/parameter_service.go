package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-params/internal/cache"
	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/engine"
	"github.com/andresuchdata/autopo-params/internal/metrics"
	"github.com/andresuchdata/autopo-params/internal/store"
)

const publishTimeout = 10 * time.Second

// SnapshotPublisher exports committed snapshots, see storage.SnapshotPublisher.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snap *domain.Snapshot) error
}

// ParameterService is the entry point for admin writes and for consumers that
// need effective parameters or order suggestions.
type ParameterService struct {
	store     *store.ParameterStore
	resolver  *engine.Resolver
	zscores   *engine.ZScoreTable
	cache     cache.EffectiveParamsCache
	publisher SnapshotPublisher
	metrics   *metrics.Metrics
	workers   int
}

type ParameterServiceOption func(*ParameterService)

func WithPublisher(p SnapshotPublisher) ParameterServiceOption {
	return func(s *ParameterService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) ParameterServiceOption {
	return func(s *ParameterService) { s.metrics = m }
}

func WithResolveWorkers(n int) ParameterServiceOption {
	return func(s *ParameterService) { s.workers = n }
}

func WithResolver(r *engine.Resolver) ParameterServiceOption {
	return func(s *ParameterService) { s.resolver = r }
}

func NewParameterService(st *store.ParameterStore, cacheImpl cache.EffectiveParamsCache, opts ...ParameterServiceOption) *ParameterService {
	if cacheImpl == nil {
		cacheImpl = cache.NewNoopParamsCache()
	}
	s := &ParameterService{
		store:    st,
		resolver: engine.NewResolver(),
		zscores:  engine.DefaultZScoreTable(),
		cache:    cacheImpl,
		workers:  engine.DefaultResolveWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}

	s.metrics.SnapshotVersion.Set(float64(st.Version()))
	st.OnCommit(s.onCommit)
	return s
}

// onCommit runs after every published write. Failures here are logged only:
// the write is already durable and visible.
func (s *ParameterService) onCommit(ctx context.Context, snap *domain.Snapshot) {
	s.metrics.SnapshotVersion.Set(float64(snap.Version))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.cache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Uint64("version", snap.Version).Msg("params: cache invalidate failed")
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, snap); err != nil {
			log.Warn().Err(err).Uint64("version", snap.Version).Msg("params: snapshot publish failed")
		}
	}
}

func (s *ParameterService) Snapshot() *domain.Snapshot {
	return s.store.Snapshot()
}

// ZScorePreview returns the rounded z-score a service level would get, for
// the admin form to show before saving.
func (s *ParameterService) ZScorePreview(pct float64) float64 {
	return s.zscores.RoundedZScoreFor(pct)
}

func (s *ParameterService) SetGlobal(ctx context.Context, leadTime float64, ventanaSigmaD int) (*domain.Snapshot, error) {
	snap, err := s.store.SetGlobal(ctx, leadTime, ventanaSigmaD)
	s.metrics.ObserveWrite("global", err)
	return snap, err
}

func (s *ParameterService) SetServiceLevel(ctx context.Context, class domain.ABCClass, pct *float64, maxCoverageDays int) (*domain.Snapshot, error) {
	snap, err := s.store.SetServiceLevel(ctx, class, pct, maxCoverageDays)
	s.metrics.ObserveWrite("service_level", err)
	return snap, err
}

func (s *ParameterService) SetThresholds(ctx context.Context, a, b, c int) (*domain.Snapshot, error) {
	snap, err := s.store.SetThresholds(ctx, a, b, c)
	s.metrics.ObserveWrite("thresholds", err)
	return snap, err
}

func (s *ParameterService) SaveSettings(ctx context.Context, settings store.Settings) (*domain.Snapshot, error) {
	snap, err := s.store.SaveSettings(ctx, settings)
	s.metrics.ObserveWrite("settings", err)
	return snap, err
}

func (s *ParameterService) UpsertStoreOverride(ctx context.Context, o domain.StoreOverride) (*domain.Snapshot, error) {
	snap, err := s.store.UpsertStoreOverride(ctx, o)
	s.metrics.ObserveWrite("store_override", err)
	return snap, err
}

func (s *ParameterService) SetStoreOverrideActive(ctx context.Context, storeID string, active bool) (*domain.Snapshot, error) {
	snap, err := s.store.SetStoreOverrideActive(ctx, storeID, active)
	s.metrics.ObserveWrite("store_override", err)
	return snap, err
}

func (s *ParameterService) DeleteStoreOverride(ctx context.Context, storeID string) (*domain.Snapshot, error) {
	snap, err := s.store.DeleteStoreOverride(ctx, storeID)
	s.metrics.ObserveWrite("store_override", err)
	return snap, err
}

func (s *ParameterService) UpsertCategoryOverride(ctx context.Context, o domain.CategoryCoverageOverride) (*domain.Snapshot, error) {
	snap, err := s.store.UpsertCategoryOverride(ctx, o)
	s.metrics.ObserveWrite("category_override", err)
	return snap, err
}

func (s *ParameterService) SetCategoryOverrideActive(ctx context.Context, category string, active bool) (*domain.Snapshot, error) {
	snap, err := s.store.SetCategoryOverrideActive(ctx, category, active)
	s.metrics.ObserveWrite("category_override", err)
	return snap, err
}

func (s *ParameterService) DeleteCategoryOverride(ctx context.Context, category string) (*domain.Snapshot, error) {
	snap, err := s.store.DeleteCategoryOverride(ctx, category)
	s.metrics.ObserveWrite("category_override", err)
	return snap, err
}

func (s *ParameterService) UpsertCapacityConstraint(ctx context.Context, c domain.CapacityConstraint) (*domain.Snapshot, error) {
	snap, err := s.store.UpsertCapacityConstraint(ctx, c)
	s.metrics.ObserveWrite("capacity_constraint", err)
	return snap, err
}

func (s *ParameterService) SetCapacityConstraintActive(ctx context.Context, key domain.CapacityKey, active bool) (*domain.Snapshot, error) {
	snap, err := s.store.SetCapacityConstraintActive(ctx, key, active)
	s.metrics.ObserveWrite("capacity_constraint", err)
	return snap, err
}

func (s *ParameterService) DeleteCapacityConstraint(ctx context.Context, key domain.CapacityKey) (*domain.Snapshot, error) {
	snap, err := s.store.DeleteCapacityConstraint(ctx, key)
	s.metrics.ObserveWrite("capacity_constraint", err)
	return snap, err
}

func (s *ParameterService) StoreOverrides() []domain.StoreOverride {
	return s.store.StoreOverrides()
}

func (s *ParameterService) CategoryOverrides() []domain.CategoryCoverageOverride {
	return s.store.CategoryOverrides()
}

func (s *ParameterService) CapacityConstraints(storeID string) []domain.CapacityConstraint {
	return s.store.CapacityConstraints(storeID)
}

// Resolve returns the effective parameters for q against the current snapshot.
func (s *ParameterService) Resolve(ctx context.Context, q engine.Query) (domain.EffectiveParameters, error) {
	return s.resolveAt(ctx, s.store.Snapshot(), q)
}

// ResolveTagged resolves a product using the class from the last classification.
func (s *ParameterService) ResolveTagged(ctx context.Context, storeID, productCode, category string) (domain.EffectiveParameters, error) {
	snap := s.store.Snapshot()
	return s.resolveAt(ctx, snap, engine.Query{
		StoreID:     storeID,
		ProductCode: productCode,
		Category:    category,
		Class:       snap.ProductClass(productCode),
	})
}

// resolveAt normalizes q once so the cache key and the resolver see the same query.
func (s *ParameterService) resolveAt(ctx context.Context, snap *domain.Snapshot, q engine.Query) (domain.EffectiveParameters, error) {
	q = q.Normalize()
	if params, ok, err := s.cache.Get(ctx, snap.Version, q); err == nil && ok {
		s.metrics.Resolutions.WithLabelValues("cache").Inc()
		return *params, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("params: cache get failed")
	}

	params, err := s.resolver.Resolve(snap, q)
	if err != nil {
		s.metrics.ResolveErrors.Inc()
		return domain.EffectiveParameters{}, err
	}
	s.metrics.Resolutions.WithLabelValues("engine").Inc()

	if err := s.cache.Set(ctx, snap.Version, q, params); err != nil {
		log.Warn().Err(err).Msg("params: cache set failed")
	}
	return params, nil
}

// ResolveBatch resolves every query against one snapshot. It bypasses the
// cache; a batch is usually a full forecasting run over many products.
func (s *ParameterService) ResolveBatch(ctx context.Context, queries []engine.Query) ([]domain.EffectiveParameters, error) {
	results, err := engine.ResolveBatch(ctx, s.resolver, s.store.Snapshot(), queries, s.workers)
	if err != nil {
		s.metrics.ResolveErrors.Inc()
		return nil, err
	}
	s.metrics.Resolutions.WithLabelValues("engine").Add(float64(len(results)))
	return results, nil
}

// OrderRequest is a raw suggestion from the forecasting step. Class is
// optional; the product's tagged class is used when empty.
type OrderRequest struct {
	StoreID     string          `json:"store_id" binding:"required"`
	ProductCode string          `json:"product_code" binding:"required"`
	Category    string          `json:"category"`
	Class       domain.ABCClass `json:"class"`
	RawUnits    int             `json:"raw_units"`
}

// OrderSuggestion pairs the parameters used with the clamped quantity.
type OrderSuggestion struct {
	Parameters domain.EffectiveParameters `json:"parameters"`
	Clamp      engine.ClampResult         `json:"clamp"`
}

// SuggestOrder resolves parameters and applies the capacity clamp against the
// same snapshot, so the adjustment flag always matches the parameters shown.
func (s *ParameterService) SuggestOrder(ctx context.Context, req OrderRequest) (*OrderSuggestion, error) {
	if req.RawUnits < 0 {
		return nil, &domain.ValidationError{Kind: domain.ErrOutOfRange, Field: "raw_units", Value: req.RawUnits, Detail: "must not be negative"}
	}

	snap := s.store.Snapshot()
	class := req.Class
	if class == "" {
		class = snap.ProductClass(req.ProductCode)
	}

	params, err := s.resolveAt(ctx, snap, engine.Query{
		StoreID:     req.StoreID,
		ProductCode: req.ProductCode,
		Category:    req.Category,
		Class:       class,
	})
	if err != nil {
		return nil, err
	}

	clamp := engine.ApplyCapacityFromSnapshot(snap, params.StoreID, params.ProductCode, req.RawUnits)
	if clamp.Adjustment != engine.AdjustmentNone {
		s.metrics.CapacityAdjustments.WithLabelValues(string(clamp.Adjustment)).Inc()
	}

	return &OrderSuggestion{Parameters: params, Clamp: clamp}, nil
}
