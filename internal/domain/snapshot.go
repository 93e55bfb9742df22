package domain

import (
	"strings"
	"time"
)

// Snapshot is an immutable, versioned view of every configuration layer.
// Resolution and classification read a snapshot; they never mutate it.
type Snapshot struct {
	Version           uint64                              `json:"version"`
	TakenAt           time.Time                           `json:"taken_at"`
	Global            GlobalParameters                    `json:"global"`
	ServiceLevels     map[ABCClass]ServiceLevelClass      `json:"service_levels"`
	Thresholds        ABCThresholds                       `json:"thresholds"`
	StoreOverrides    map[string]StoreOverride            `json:"store_overrides"`
	CategoryOverrides map[string]CategoryCoverageOverride `json:"category_overrides"`
	Capacity          map[CapacityKey]CapacityConstraint  `json:"-"`
	ProductClasses    map[string]ABCClass                 `json:"product_classes"`
}

// NewSnapshot returns version 0 populated with factory defaults.
func NewSnapshot() *Snapshot {
	s := &Snapshot{
		Global:            DefaultGlobalParameters(),
		ServiceLevels:     DefaultServiceLevels(),
		Thresholds:        DefaultABCThresholds(),
		StoreOverrides:    make(map[string]StoreOverride),
		CategoryOverrides: make(map[string]CategoryCoverageOverride),
		Capacity:          make(map[CapacityKey]CapacityConstraint),
		ProductClasses:    make(map[string]ABCClass),
	}
	return s
}

// DefaultServiceLevels returns one record per class. Z-scores match the default anchor table.
func DefaultServiceLevels() map[ABCClass]ServiceLevelClass {
	pct := func(v float64) *float64 { return &v }
	return map[ABCClass]ServiceLevelClass{
		ClassA: {Class: ClassA, ServiceLevelPct: pct(98), ZScore: pct(2.05), MaxCoverageDays: 7, Method: MethodStatistical},
		ClassB: {Class: ClassB, ServiceLevelPct: pct(95), ZScore: pct(1.65), MaxCoverageDays: 14, Method: MethodStatistical},
		ClassC: {Class: ClassC, ServiceLevelPct: pct(90), ZScore: pct(1.28), MaxCoverageDays: 21, Method: MethodStatistical},
		ClassD: {Class: ClassD, MaxCoverageDays: 30, Method: MethodHeuristic},
	}
}

// Clone returns a deep copy that can be modified and published as the next version.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.ServiceLevels = make(map[ABCClass]ServiceLevelClass, len(s.ServiceLevels))
	for k, v := range s.ServiceLevels {
		v.ServiceLevelPct = clonePtr(v.ServiceLevelPct)
		v.ZScore = clonePtr(v.ZScore)
		c.ServiceLevels[k] = v
	}
	c.StoreOverrides = make(map[string]StoreOverride, len(s.StoreOverrides))
	for k, v := range s.StoreOverrides {
		c.StoreOverrides[k] = v
	}
	c.CategoryOverrides = make(map[string]CategoryCoverageOverride, len(s.CategoryOverrides))
	for k, v := range s.CategoryOverrides {
		c.CategoryOverrides[k] = v
	}
	c.Capacity = make(map[CapacityKey]CapacityConstraint, len(s.Capacity))
	for k, v := range s.Capacity {
		c.Capacity[k] = v
	}
	c.ProductClasses = make(map[string]ABCClass, len(s.ProductClasses))
	for k, v := range s.ProductClasses {
		c.ProductClasses[k] = v
	}
	return &c
}

// ActiveStoreOverride returns the store override only when it exists and is active.
func (s *Snapshot) ActiveStoreOverride(storeID string) (StoreOverride, bool) {
	o, ok := s.StoreOverrides[storeID]
	if !ok || !o.Active {
		return StoreOverride{}, false
	}
	return o, true
}

// ActiveCategoryOverride looks up a category by its normalized name.
func (s *Snapshot) ActiveCategoryOverride(category string) (CategoryCoverageOverride, bool) {
	o, ok := s.CategoryOverrides[NormalizeCategory(category)]
	if !ok || !o.Active {
		return CategoryCoverageOverride{}, false
	}
	return o, true
}

// ActiveCapacityConstraint returns the active constraint for a (store, product), if any.
func (s *Snapshot) ActiveCapacityConstraint(storeID, productCode string) (CapacityConstraint, bool) {
	c, ok := s.Capacity[CapacityKey{StoreID: storeID, ProductCode: productCode}]
	if !ok || !c.Active {
		return CapacityConstraint{}, false
	}
	return c, true
}

// ProductClass returns the tagged class of a product. Untagged products had no
// trailing sales in the last classification run and rank last, so they are D.
func (s *Snapshot) ProductClass(productCode string) ABCClass {
	if c, ok := s.ProductClasses[strings.TrimSpace(productCode)]; ok {
		return c
	}
	return ClassD
}

// CapacityConstraints returns the constraints as a slice, for serialization.
func (s *Snapshot) CapacityConstraints() []CapacityConstraint {
	out := make([]CapacityConstraint, 0, len(s.Capacity))
	for _, c := range s.Capacity {
		out = append(out, c)
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
