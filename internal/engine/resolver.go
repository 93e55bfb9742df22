package engine

import (
	"strings"

	"github.com/andresuchdata/autopo-params/internal/domain"
)

// Query identifies what to resolve.
type Query struct {
	StoreID     string          `json:"store_id"`
	ProductCode string          `json:"product_code"`
	Category    string          `json:"category"`
	Class       domain.ABCClass `json:"class"`
}

// Normalize trims the identifiers, upper-cases the class and applies the
// category key normalization.
func (q Query) Normalize() Query {
	return Query{
		StoreID:     strings.TrimSpace(q.StoreID),
		ProductCode: strings.TrimSpace(q.ProductCode),
		Category:    domain.NormalizeCategory(q.Category),
		Class:       domain.ABCClass(strings.ToUpper(strings.TrimSpace(string(q.Class)))),
	}
}

// Layer is one link in a precedence chain: it either supplies a value for the
// query or inherits to the next layer.
type Layer[T any] struct {
	Source domain.Provenance
	Lookup func(snap *domain.Snapshot, q Query) domain.Override[T]
}

// Chain is an ordered list of layers; the first layer that does not inherit wins.
type Chain[T any] []Layer[T]

// Resolve walks the chain. ok is false only if every layer inherits.
func (c Chain[T]) Resolve(snap *domain.Snapshot, q Query) (value T, source domain.Provenance, ok bool) {
	for _, layer := range c {
		if v, set := layer.Lookup(snap, q).Get(); set {
			return v, layer.Source, true
		}
	}
	var zero T
	return zero, "", false
}

// StoreLeadTime supplies lead_time_override from an active store override.
func StoreLeadTime() Layer[float64] {
	return Layer[float64]{
		Source: domain.ProvenanceStore,
		Lookup: func(snap *domain.Snapshot, q Query) domain.Override[float64] {
			o, ok := snap.ActiveStoreOverride(q.StoreID)
			if !ok {
				return domain.Inherit[float64]()
			}
			return o.LeadTime
		},
	}
}

// GlobalLeadTime always supplies the global lead time.
func GlobalLeadTime() Layer[float64] {
	return Layer[float64]{
		Source: domain.ProvenanceGlobal,
		Lookup: func(snap *domain.Snapshot, _ Query) domain.Override[float64] {
			return domain.Set(snap.Global.LeadTime)
		},
	}
}

// CategoryCoverage supplies the class's coverage days from an active category override.
func CategoryCoverage() Layer[int] {
	return Layer[int]{
		Source: domain.ProvenanceCategory,
		Lookup: func(snap *domain.Snapshot, q Query) domain.Override[int] {
			o, ok := snap.ActiveCategoryOverride(q.Category)
			if !ok {
				return domain.Inherit[int]()
			}
			return domain.Set(o.Coverage.For(q.Class))
		},
	}
}

// StoreCoverage supplies the class's coverage days from an active store override.
func StoreCoverage() Layer[int] {
	return Layer[int]{
		Source: domain.ProvenanceStore,
		Lookup: func(snap *domain.Snapshot, q Query) domain.Override[int] {
			o, ok := snap.ActiveStoreOverride(q.StoreID)
			if !ok {
				return domain.Inherit[int]()
			}
			return o.Coverage.For(q.Class)
		},
	}
}

// GlobalCoverage supplies dias_cobertura_max of the class's service level.
func GlobalCoverage() Layer[int] {
	return Layer[int]{
		Source: domain.ProvenanceGlobal,
		Lookup: func(snap *domain.Snapshot, q Query) domain.Override[int] {
			sl, ok := snap.ServiceLevels[q.Class]
			if !ok {
				return domain.Inherit[int]()
			}
			return domain.Set(sl.MaxCoverageDays)
		},
	}
}

// Resolver merges the configuration layers of a snapshot into effective parameters.
type Resolver struct {
	leadTime Chain[float64]
	coverage Chain[int]
}

// NewResolver creates a resolver with the standard precedence:
// lead time store > global; coverage category > store > global.
func NewResolver() *Resolver {
	return &Resolver{
		leadTime: Chain[float64]{StoreLeadTime(), GlobalLeadTime()},
		coverage: Chain[int]{CategoryCoverage(), StoreCoverage(), GlobalCoverage()},
	}
}

// NewResolverWithChains creates a resolver with custom chains, e.g. to add a
// product-level layer in front of the standard ones.
func NewResolverWithChains(leadTime Chain[float64], coverage Chain[int]) *Resolver {
	return &Resolver{leadTime: leadTime, coverage: coverage}
}

// Resolve computes the effective parameters for q against snap. Each field is
// resolved independently; missing overrides are inherited, never errors.
// q is normalized first, so " t1 "/"a" and "T1"/"A" resolve identically.
func (r *Resolver) Resolve(snap *domain.Snapshot, q Query) (domain.EffectiveParameters, error) {
	q = q.Normalize()
	if !q.Class.Valid() {
		return domain.EffectiveParameters{}, &domain.ValidationError{
			Kind:   domain.ErrUnknownClass,
			Field:  "clase",
			Value:  q.Class,
			Detail: "class must be one of A, B, C, D",
		}
	}

	// 1. Lead time
	leadTime, leadSource, _ := r.leadTime.Resolve(snap, q)

	// 2. Coverage days for the class
	coverage, coverageSource, _ := r.coverage.Resolve(snap, q)

	// 3. z-score and method always come from the class's service level
	params := domain.EffectiveParameters{
		StoreID:       q.StoreID,
		ProductCode:   q.ProductCode,
		Category:      q.Category,
		Class:         q.Class,
		LeadTimeDays:  leadTime,
		CoverageDays:  coverage,
		Method:        q.Class.Method(),
		VentanaSigmaD: snap.Global.VentanaSigmaD,
		Provenance: domain.FieldProvenance{
			LeadTime:     leadSource,
			CoverageDays: coverageSource,
			ZScore:       domain.ProvenanceGlobal,
		},
		SnapshotVersion: snap.Version,
	}
	if sl, ok := snap.ServiceLevels[q.Class]; ok && params.Method == domain.MethodStatistical && sl.ZScore != nil {
		z := *sl.ZScore
		params.ZScore = &z
	}

	return params, nil
}

// ResolveTagged resolves a product using the class recorded by the last classification.
func (r *Resolver) ResolveTagged(snap *domain.Snapshot, storeID, productCode, category string) (domain.EffectiveParameters, error) {
	return r.Resolve(snap, Query{
		StoreID:     storeID,
		ProductCode: productCode,
		Category:    category,
		Class:       snap.ProductClass(productCode),
	})
}
