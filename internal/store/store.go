package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/engine"
)

// Persister writes committed configuration to durable storage. Each call runs
// before the new snapshot is published; an error aborts the write.
type Persister interface {
	SaveGlobal(ctx context.Context, g domain.GlobalParameters) error
	SaveServiceLevel(ctx context.Context, sl domain.ServiceLevelClass) error
	SaveThresholds(ctx context.Context, t domain.ABCThresholds) error
	SaveSettings(ctx context.Context, g domain.GlobalParameters, levels []domain.ServiceLevelClass, t domain.ABCThresholds) error
	SaveStoreOverride(ctx context.Context, o domain.StoreOverride) error
	DeleteStoreOverride(ctx context.Context, storeID string) error
	SaveCategoryOverride(ctx context.Context, o domain.CategoryCoverageOverride) error
	DeleteCategoryOverride(ctx context.Context, category string) error
	SaveCapacityConstraint(ctx context.Context, c domain.CapacityConstraint) error
	DeleteCapacityConstraint(ctx context.Context, key domain.CapacityKey) error
	SaveProductClasses(ctx context.Context, classes map[string]domain.ABCClass) error
}

// ServiceLevelUpdate is one class row of the settings form. A nil
// ServiceLevelPct keeps the stored value.
type ServiceLevelUpdate struct {
	Class           domain.ABCClass `json:"clase"`
	ServiceLevelPct *float64        `json:"nivel_servicio_pct"`
	MaxCoverageDays int             `json:"dias_cobertura_max"`
}

// Settings is the admin settings form saved in one step.
type Settings struct {
	Global        domain.GlobalParameters `json:"global"`
	ServiceLevels []ServiceLevelUpdate    `json:"service_levels"`
	Thresholds    domain.ABCThresholds    `json:"thresholds"`
}

// CommitFunc observes every published snapshot, e.g. to invalidate caches.
type CommitFunc func(ctx context.Context, snap *domain.Snapshot)

// ParameterStore owns the configuration layers. Readers get an immutable
// snapshot without locking; writers serialize on mu, validate, persist, and
// then publish the next version.
type ParameterStore struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	current   atomic.Pointer[domain.Snapshot]
	persister Persister
	zscores   *engine.ZScoreTable
	observers []CommitFunc
	now       func() time.Time
}

// Option customizes a ParameterStore.
type Option func(*ParameterStore)

// WithPersister makes every write durable before it becomes visible.
func WithPersister(p Persister) Option {
	return func(s *ParameterStore) { s.persister = p }
}

// WithZScoreTable replaces the default service level to z-score table.
func WithZScoreTable(t *engine.ZScoreTable) Option {
	return func(s *ParameterStore) { s.zscores = t }
}

// WithClock is used by tests to pin UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *ParameterStore) { s.now = now }
}

// New creates a store seeded with factory defaults at version 0.
func New(opts ...Option) *ParameterStore {
	s := &ParameterStore{
		zscores: engine.DefaultZScoreTable(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(domain.NewSnapshot())
	return s
}

// OnCommit registers fn to run after each published write. Observers run in
// commit order after the write lock is released and must not write to the store.
func (s *ParameterStore) OnCommit(fn CommitFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Snapshot returns the current immutable snapshot.
func (s *ParameterStore) Snapshot() *domain.Snapshot {
	return s.current.Load()
}

// Version returns the version of the current snapshot.
func (s *ParameterStore) Version() uint64 {
	return s.current.Load().Version
}

// Load replaces the current state with a snapshot read from durable storage,
// e.g. at startup. Nothing is persisted. The snapshot is validated and its
// z-scores are recomputed so a stale column cannot leak through.
func (s *ParameterStore) Load(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("load: nil snapshot")
	}
	next := snap.Clone()
	if err := next.Global.Validate(); err != nil {
		return err
	}
	if err := next.Thresholds.Validate(); err != nil {
		return err
	}
	defaults := domain.DefaultServiceLevels()
	for _, c := range domain.AllClasses {
		sl, ok := next.ServiceLevels[c]
		if !ok {
			sl = defaults[c]
		}
		sl.Method = c.Method()
		if err := sl.Validate(); err != nil {
			return err
		}
		sl.ZScore = s.zscoreFor(c, sl.ServiceLevelPct)
		next.ServiceLevels[c] = sl
	}
	if err := validateRows(next); err != nil {
		return err
	}

	s.mu.Lock()
	next.Version = s.current.Load().Version + 1
	next.TakenAt = s.now()
	s.publishAndUnlock(ctx, next)
	return nil
}

// validateRows checks the override, capacity and tag rows of a loaded snapshot.
func validateRows(snap *domain.Snapshot) error {
	for id, o := range snap.StoreOverrides {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("load: store override %q: %w", id, err)
		}
	}
	for name, o := range snap.CategoryOverrides {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("load: category override %q: %w", name, err)
		}
	}
	for key, c := range snap.Capacity {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("load: capacity %s/%s: %w", key.StoreID, key.ProductCode, err)
		}
	}
	for code, c := range snap.ProductClasses {
		if !c.Valid() {
			return fmt.Errorf("load: product %q: %w", code, &domain.ValidationError{
				Kind:   domain.ErrUnknownClass,
				Field:  "clase",
				Value:  c,
				Detail: "class must be one of A, B, C, D",
			})
		}
	}
	return nil
}

// SetGlobal replaces the global lead time and variance window.
func (s *ParameterStore) SetGlobal(ctx context.Context, leadTime float64, ventanaSigmaD int) (*domain.Snapshot, error) {
	g := domain.GlobalParameters{LeadTime: leadTime, VentanaSigmaD: ventanaSigmaD}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		g.UpdatedAt = next.TakenAt
		if s.persister != nil {
			if err := s.persister.SaveGlobal(ctx, g); err != nil {
				return err
			}
		}
		next.Global = g
		return nil
	})
}

// SetServiceLevel updates one class. A nil pct keeps the stored service level of
// a statistical class; class D rejects any pct. The z-score is always derived.
func (s *ParameterStore) SetServiceLevel(ctx context.Context, class domain.ABCClass, pct *float64, maxCoverageDays int) (*domain.Snapshot, error) {
	if err := domain.ValidateServiceLevel(class, pct, maxCoverageDays); err != nil {
		return nil, err
	}

	u := ServiceLevelUpdate{Class: class, ServiceLevelPct: pct, MaxCoverageDays: maxCoverageDays}
	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		sl := s.applyServiceLevel(next.ServiceLevels[class], u, next.TakenAt)
		if err := sl.Validate(); err != nil {
			return err
		}

		if s.persister != nil {
			if err := s.persister.SaveServiceLevel(ctx, sl); err != nil {
				return err
			}
		}
		next.ServiceLevels[class] = sl
		return nil
	})
}

// SetThresholds replaces the ABC rank cutoffs. Existing product classes are kept
// until the next classification run.
func (s *ParameterStore) SetThresholds(ctx context.Context, a, b, c int) (*domain.Snapshot, error) {
	t := domain.ABCThresholds{A: a, B: b, C: c}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		if s.persister != nil {
			if err := s.persister.SaveThresholds(ctx, t); err != nil {
				return err
			}
		}
		next.Thresholds = t
		return nil
	})
}

// SaveSettings commits the admin settings form as one version: global
// parameters, thresholds and every listed service level. Either all of them are
// applied or none.
func (s *ParameterStore) SaveSettings(ctx context.Context, settings Settings) (*domain.Snapshot, error) {
	if err := settings.Global.Validate(); err != nil {
		return nil, err
	}
	if err := settings.Thresholds.Validate(); err != nil {
		return nil, err
	}
	for _, u := range settings.ServiceLevels {
		if err := domain.ValidateServiceLevel(u.Class, u.ServiceLevelPct, u.MaxCoverageDays); err != nil {
			return nil, err
		}
	}

	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		g := settings.Global
		g.UpdatedAt = next.TakenAt

		levels := make([]domain.ServiceLevelClass, 0, len(settings.ServiceLevels))
		for _, u := range settings.ServiceLevels {
			sl := s.applyServiceLevel(next.ServiceLevels[u.Class], u, next.TakenAt)
			if err := sl.Validate(); err != nil {
				return err
			}
			levels = append(levels, sl)
		}

		if s.persister != nil {
			if err := s.persister.SaveSettings(ctx, g, levels, settings.Thresholds); err != nil {
				return err
			}
		}
		next.Global = g
		next.Thresholds = settings.Thresholds
		for _, sl := range levels {
			next.ServiceLevels[sl.Class] = sl
		}
		return nil
	})
}

// UpsertStoreOverride creates or replaces the override for o.StoreID.
func (s *ParameterStore) UpsertStoreOverride(ctx context.Context, o domain.StoreOverride) (*domain.Snapshot, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		o.UpdatedAt = next.TakenAt
		if s.persister != nil {
			if err := s.persister.SaveStoreOverride(ctx, o); err != nil {
				return err
			}
		}
		next.StoreOverrides[o.StoreID] = o
		return nil
	})
}

// SetStoreOverrideActive toggles a store override without losing its values.
func (s *ParameterStore) SetStoreOverrideActive(ctx context.Context, storeID string, active bool) (*domain.Snapshot, error) {
	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		o, ok := next.StoreOverrides[storeID]
		if !ok {
			return fmt.Errorf("store override %q: %w", storeID, ErrNotFound)
		}
		o.Active = active
		o.UpdatedAt = next.TakenAt
		if s.persister != nil {
			if err := s.persister.SaveStoreOverride(ctx, o); err != nil {
				return err
			}
		}
		next.StoreOverrides[storeID] = o
		return nil
	})
}

// DeleteStoreOverride removes a store override.
func (s *ParameterStore) DeleteStoreOverride(ctx context.Context, storeID string) (*domain.Snapshot, error) {
	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		if _, ok := next.StoreOverrides[storeID]; !ok {
			return fmt.Errorf("store override %q: %w", storeID, ErrNotFound)
		}
		if s.persister != nil {
			if err := s.persister.DeleteStoreOverride(ctx, storeID); err != nil {
				return err
			}
		}
		delete(next.StoreOverrides, storeID)
		return nil
	})
}

// UpsertCategoryOverride creates or replaces a category override. The category
// name is normalized before it is used as a key.
func (s *ParameterStore) UpsertCategoryOverride(ctx context.Context, o domain.CategoryCoverageOverride) (*domain.Snapshot, error) {
	o.Category = domain.NormalizeCategory(o.Category)
	if err := o.Validate(); err != nil {
		return nil, err
	}

	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		o.UpdatedAt = next.TakenAt
		if s.persister != nil {
			if err := s.persister.SaveCategoryOverride(ctx, o); err != nil {
				return err
			}
		}
		next.CategoryOverrides[o.Category] = o
		return nil
	})
}

// SetCategoryOverrideActive toggles a category override.
func (s *ParameterStore) SetCategoryOverrideActive(ctx context.Context, category string, active bool) (*domain.Snapshot, error) {
	key := domain.NormalizeCategory(category)
	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		o, ok := next.CategoryOverrides[key]
		if !ok {
			return fmt.Errorf("category override %q: %w", key, ErrNotFound)
		}
		o.Active = active
		o.UpdatedAt = next.TakenAt
		if s.persister != nil {
			if err := s.persister.SaveCategoryOverride(ctx, o); err != nil {
				return err
			}
		}
		next.CategoryOverrides[key] = o
		return nil
	})
}

// DeleteCategoryOverride removes a category override.
func (s *ParameterStore) DeleteCategoryOverride(ctx context.Context, category string) (*domain.Snapshot, error) {
	key := domain.NormalizeCategory(category)
	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		if _, ok := next.CategoryOverrides[key]; !ok {
			return fmt.Errorf("category override %q: %w", key, ErrNotFound)
		}
		if s.persister != nil {
			if err := s.persister.DeleteCategoryOverride(ctx, key); err != nil {
				return err
			}
		}
		delete(next.CategoryOverrides, key)
		return nil
	})
}

// UpsertCapacityConstraint creates or replaces the constraint for (store, product).
func (s *ParameterStore) UpsertCapacityConstraint(ctx context.Context, c domain.CapacityConstraint) (*domain.Snapshot, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		c.UpdatedAt = next.TakenAt
		if s.persister != nil {
			if err := s.persister.SaveCapacityConstraint(ctx, c); err != nil {
				return err
			}
		}
		next.Capacity[c.Key()] = c
		return nil
	})
}

// SetCapacityConstraintActive toggles a capacity constraint.
func (s *ParameterStore) SetCapacityConstraintActive(ctx context.Context, key domain.CapacityKey, active bool) (*domain.Snapshot, error) {
	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		c, ok := next.Capacity[key]
		if !ok {
			return fmt.Errorf("capacity constraint %s/%s: %w", key.StoreID, key.ProductCode, ErrNotFound)
		}
		c.Active = active
		c.UpdatedAt = next.TakenAt
		if s.persister != nil {
			if err := s.persister.SaveCapacityConstraint(ctx, c); err != nil {
				return err
			}
		}
		next.Capacity[key] = c
		return nil
	})
}

// DeleteCapacityConstraint removes a capacity constraint.
func (s *ParameterStore) DeleteCapacityConstraint(ctx context.Context, key domain.CapacityKey) (*domain.Snapshot, error) {
	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		if _, ok := next.Capacity[key]; !ok {
			return fmt.Errorf("capacity constraint %s/%s: %w", key.StoreID, key.ProductCode, ErrNotFound)
		}
		if s.persister != nil {
			if err := s.persister.DeleteCapacityConstraint(ctx, key); err != nil {
				return err
			}
		}
		delete(next.Capacity, key)
		return nil
	})
}

// TagProductClasses replaces the product to class mapping with the output of a
// classification run.
func (s *ParameterStore) TagProductClasses(ctx context.Context, classes map[string]domain.ABCClass) (*domain.Snapshot, error) {
	tagged := make(map[string]domain.ABCClass, len(classes))
	for code, c := range classes {
		if !c.Valid() {
			return nil, &domain.ValidationError{Kind: domain.ErrUnknownClass, Field: "clase", Value: c, Detail: code}
		}
		tagged[code] = c
	}

	return s.commit(ctx, func(ctx context.Context, next *domain.Snapshot) error {
		if s.persister != nil {
			if err := s.persister.SaveProductClasses(ctx, tagged); err != nil {
				return err
			}
		}
		next.ProductClasses = tagged
		return nil
	})
}

// StoreOverrides lists every store override ordered by store id.
func (s *ParameterStore) StoreOverrides() []domain.StoreOverride {
	snap := s.Snapshot()
	out := make([]domain.StoreOverride, 0, len(snap.StoreOverrides))
	for _, o := range snap.StoreOverrides {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoreID < out[j].StoreID })
	return out
}

// CategoryOverrides lists every category override ordered by name.
func (s *ParameterStore) CategoryOverrides() []domain.CategoryCoverageOverride {
	snap := s.Snapshot()
	out := make([]domain.CategoryCoverageOverride, 0, len(snap.CategoryOverrides))
	for _, o := range snap.CategoryOverrides {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// CapacityConstraints lists constraints for one store, or all when storeID is empty.
func (s *ParameterStore) CapacityConstraints(storeID string) []domain.CapacityConstraint {
	snap := s.Snapshot()
	out := make([]domain.CapacityConstraint, 0)
	for _, c := range snap.Capacity {
		if storeID == "" || c.StoreID == storeID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StoreID != out[j].StoreID {
			return out[i].StoreID < out[j].StoreID
		}
		return out[i].ProductCode < out[j].ProductCode
	})
	return out
}

// commit clones the current snapshot, lets apply mutate the clone (persisting
// as it goes), and publishes it as the next version. When apply fails the
// current snapshot is untouched.
func (s *ParameterStore) commit(ctx context.Context, apply func(ctx context.Context, next *domain.Snapshot) error) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()

	cur := s.current.Load()
	next := cur.Clone()
	next.Version = cur.Version + 1
	next.TakenAt = s.now()

	if err := apply(ctx, next); err != nil {
		s.mu.Unlock()
		log.Warn().Err(err).Uint64("version", cur.Version).Msg("parameter write rejected")
		return nil, err
	}

	s.publishAndUnlock(ctx, next)
	return next, nil
}

// publishAndUnlock must be called with mu held. It swaps in next, takes
// notifyMu before releasing mu, and runs the observers under notifyMu only,
// so the next writer can validate and persist while they run.
func (s *ParameterStore) publishAndUnlock(ctx context.Context, next *domain.Snapshot) {
	s.current.Store(next)
	observers := s.observers
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	log.Debug().Uint64("version", next.Version).Msg("parameter snapshot published")
	for _, fn := range observers {
		fn(ctx, next)
	}
}

// applyServiceLevel merges u into the stored record and re-derives the z-score.
func (s *ParameterStore) applyServiceLevel(sl domain.ServiceLevelClass, u ServiceLevelUpdate, at time.Time) domain.ServiceLevelClass {
	sl.Class = u.Class
	sl.Method = u.Class.Method()
	sl.MaxCoverageDays = u.MaxCoverageDays
	if u.ServiceLevelPct != nil {
		v := *u.ServiceLevelPct
		sl.ServiceLevelPct = &v
	}
	sl.ZScore = s.zscoreFor(u.Class, sl.ServiceLevelPct)
	sl.UpdatedAt = at
	return sl
}

func (s *ParameterStore) zscoreFor(c domain.ABCClass, pct *float64) *float64 {
	if c.Method() != domain.MethodStatistical || pct == nil {
		return nil
	}
	z := s.zscores.RoundedZScoreFor(*pct)
	return &z
}
