// internal/domain/models.go
package domain

import (
	"strings"
	"time"
)

// GlobalParameters is the network-wide default layer.
type GlobalParameters struct {
	LeadTime      float64   `json:"lead_time" db:"lead_time"`             // Days, fractional
	VentanaSigmaD int       `json:"ventana_sigma_d" db:"ventana_sigma_d"` // Demand-variance window in days
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultGlobalParameters returns the factory defaults.
func DefaultGlobalParameters() GlobalParameters {
	return GlobalParameters{
		LeadTime:      1.5,
		VentanaSigmaD: 30,
	}
}

// ServiceLevelClass holds the per-class service level and default coverage.
type ServiceLevelClass struct {
	Class           ABCClass  `json:"clase" db:"clase"`
	ServiceLevelPct *float64  `json:"nivel_servicio_pct" db:"nivel_servicio_pct"` // nil for class D
	ZScore          *float64  `json:"z_score" db:"z_score"`                       // derived from ServiceLevelPct
	MaxCoverageDays int       `json:"dias_cobertura_max" db:"dias_cobertura_max"`
	Method          Method    `json:"metodo" db:"metodo"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// ABCThresholds are cumulative rank cutoffs: rank <= A is class A, and so on.
type ABCThresholds struct {
	A int `json:"umbral_a" db:"umbral_a"`
	B int `json:"umbral_b" db:"umbral_b"`
	C int `json:"umbral_c" db:"umbral_c"`
}

// DefaultABCThresholds returns the factory cutoffs.
func DefaultABCThresholds() ABCThresholds {
	return ABCThresholds{A: 50, B: 200, C: 800}
}

// CoverageOverrides are per-class coverage days that may each inherit.
type CoverageOverrides struct {
	A Override[int] `json:"dias_cobertura_a"`
	B Override[int] `json:"dias_cobertura_b"`
	C Override[int] `json:"dias_cobertura_c"`
	D Override[int] `json:"dias_cobertura_d"`
}

// For returns the override for class c. Unknown classes inherit.
func (o CoverageOverrides) For(c ABCClass) Override[int] {
	switch c {
	case ClassA:
		return o.A
	case ClassB:
		return o.B
	case ClassC:
		return o.C
	case ClassD:
		return o.D
	default:
		return Inherit[int]()
	}
}

// CoverageDays are per-class coverage days that are always present.
type CoverageDays struct {
	A int `json:"dias_cobertura_a" db:"dias_cobertura_a"`
	B int `json:"dias_cobertura_b" db:"dias_cobertura_b"`
	C int `json:"dias_cobertura_c" db:"dias_cobertura_c"`
	D int `json:"dias_cobertura_d" db:"dias_cobertura_d"`
}

// For returns the coverage days for class c, or 0 for an unknown class.
func (d CoverageDays) For(c ABCClass) int {
	switch c {
	case ClassA:
		return d.A
	case ClassB:
		return d.B
	case ClassC:
		return d.C
	case ClassD:
		return d.D
	default:
		return 0
	}
}

// StoreOverride overrides lead time and coverage for one store.
type StoreOverride struct {
	StoreID   string            `json:"tienda_id"`
	LeadTime  Override[float64] `json:"lead_time_override"`
	Coverage  CoverageOverrides `json:"coverage"`
	Active    bool              `json:"activo"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CategoryCoverageOverride overrides coverage days for every product in a category.
type CategoryCoverageOverride struct {
	Category   string       `json:"categoria"` // normalized, see NormalizeCategory
	Coverage   CoverageDays `json:"coverage"`
	Perishable bool         `json:"es_perecedero"` // informational only
	Active     bool         `json:"activo"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// ConstraintKind is a descriptive tag for a capacity constraint.
type ConstraintKind string

const (
	ConstraintFreezer       ConstraintKind = "freezer"
	ConstraintShelf         ConstraintKind = "shelf"
	ConstraintFloor         ConstraintKind = "floor"
	ConstraintDisplay       ConstraintKind = "display"
	ConstraintPhysicalSpace ConstraintKind = "physical_space"
)

var constraintKinds = map[ConstraintKind]string{
	ConstraintFreezer:       "freezer",
	ConstraintShelf:         "shelf",
	ConstraintFloor:         "floor",
	ConstraintDisplay:       "display",
	ConstraintPhysicalSpace: "physical space",
}

// Valid reports whether k is a known constraint tag.
func (k ConstraintKind) Valid() bool {
	_, ok := constraintKinds[k]
	return ok
}

// Label returns a human-readable label, e.g. "physical space".
func (k ConstraintKind) Label() string {
	if label, ok := constraintKinds[k]; ok {
		return label
	}
	return string(k)
}

// CapacityKey identifies a (store, product) pair.
type CapacityKey struct {
	StoreID     string
	ProductCode string
}

// CapacityConstraint limits the suggested order for one product in one store.
type CapacityConstraint struct {
	StoreID         string         `json:"tienda_id"`
	ProductCode     string         `json:"producto_codigo"`
	MaxUnits        Override[int]  `json:"capacidad_maxima_unidades"`
	MinDisplayUnits Override[int]  `json:"minimo_exhibicion_unidades"`
	Kind            ConstraintKind `json:"tipo_restriccion"`
	Active          bool           `json:"activo"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Key returns the (store, product) key of the constraint.
func (c CapacityConstraint) Key() CapacityKey {
	return CapacityKey{StoreID: c.StoreID, ProductCode: c.ProductCode}
}

// FieldProvenance records which layer supplied each resolved field.
type FieldProvenance struct {
	LeadTime     Provenance `json:"lead_time"`
	CoverageDays Provenance `json:"coverage_days"`
	ZScore       Provenance `json:"z_score"`
}

// EffectiveParameters is the merged parameter set for one (store, product).
type EffectiveParameters struct {
	StoreID         string          `json:"store_id"`
	ProductCode     string          `json:"product_code"`
	Category        string          `json:"category"`
	Class           ABCClass        `json:"class"`
	LeadTimeDays    float64         `json:"lead_time_days"`
	CoverageDays    int             `json:"coverage_days"`
	ZScore          *float64        `json:"z_score"` // nil for the heuristic method
	Method          Method          `json:"method"`
	VentanaSigmaD   int             `json:"ventana_sigma_d"`
	Provenance      FieldProvenance `json:"provenance"`
	SnapshotVersion uint64          `json:"snapshot_version"`
}

// NormalizeCategory trims, upper-cases and collapses inner whitespace so that
// "  frutas   y verduras" and "FRUTAS Y VERDURAS" share one key.
func NormalizeCategory(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}
