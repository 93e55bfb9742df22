package postgres

import (
	"database/sql"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-params/internal/domain"
)

type globalRow struct {
	LeadTime      float64   `db:"lead_time"`
	VentanaSigmaD int       `db:"ventana_sigma_d"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r globalRow) toDomain() domain.GlobalParameters {
	return domain.GlobalParameters{LeadTime: r.LeadTime, VentanaSigmaD: r.VentanaSigmaD, UpdatedAt: r.UpdatedAt}
}

type serviceLevelRow struct {
	Class           string          `db:"clase"`
	ServiceLevelPct sql.NullFloat64 `db:"nivel_servicio_pct"`
	ZScore          sql.NullFloat64 `db:"z_score"`
	MaxCoverageDays int             `db:"dias_cobertura_max"`
	Method          string          `db:"metodo"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (r serviceLevelRow) toDomain() domain.ServiceLevelClass {
	return domain.ServiceLevelClass{
		Class:           domain.ABCClass(strings.TrimSpace(r.Class)),
		ServiceLevelPct: floatPtr(r.ServiceLevelPct),
		ZScore:          floatPtr(r.ZScore),
		MaxCoverageDays: r.MaxCoverageDays,
		Method:          domain.Method(r.Method),
		UpdatedAt:       r.UpdatedAt,
	}
}

type storeOverrideRow struct {
	StoreID   string          `db:"tienda_id"`
	LeadTime  sql.NullFloat64 `db:"lead_time_override"`
	CoverageA sql.NullInt64   `db:"dias_cobertura_a"`
	CoverageB sql.NullInt64   `db:"dias_cobertura_b"`
	CoverageC sql.NullInt64   `db:"dias_cobertura_c"`
	CoverageD sql.NullInt64   `db:"dias_cobertura_d"`
	Active    bool            `db:"activo"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func (r storeOverrideRow) toDomain() domain.StoreOverride {
	return domain.StoreOverride{
		StoreID:  r.StoreID,
		LeadTime: domain.FromPtr(floatPtr(r.LeadTime)),
		Coverage: domain.CoverageOverrides{
			A: domain.FromPtr(intPtr(r.CoverageA)),
			B: domain.FromPtr(intPtr(r.CoverageB)),
			C: domain.FromPtr(intPtr(r.CoverageC)),
			D: domain.FromPtr(intPtr(r.CoverageD)),
		},
		Active:    r.Active,
		UpdatedAt: r.UpdatedAt,
	}
}

type categoryOverrideRow struct {
	Category   string    `db:"categoria"`
	CoverageA  int       `db:"dias_cobertura_a"`
	CoverageB  int       `db:"dias_cobertura_b"`
	CoverageC  int       `db:"dias_cobertura_c"`
	CoverageD  int       `db:"dias_cobertura_d"`
	Perishable bool      `db:"es_perecedero"`
	Active     bool      `db:"activo"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r categoryOverrideRow) toDomain() domain.CategoryCoverageOverride {
	return domain.CategoryCoverageOverride{
		Category:   domain.NormalizeCategory(r.Category),
		Coverage:   domain.CoverageDays{A: r.CoverageA, B: r.CoverageB, C: r.CoverageC, D: r.CoverageD},
		Perishable: r.Perishable,
		Active:     r.Active,
		UpdatedAt:  r.UpdatedAt,
	}
}

type capacityRow struct {
	StoreID         string        `db:"tienda_id"`
	ProductCode     string        `db:"producto_codigo"`
	MaxUnits        sql.NullInt64 `db:"capacidad_maxima_unidades"`
	MinDisplayUnits sql.NullInt64 `db:"minimo_exhibicion_unidades"`
	Kind            string        `db:"tipo_restriccion"`
	Active          bool          `db:"activo"`
	UpdatedAt       time.Time     `db:"updated_at"`
}

func (r capacityRow) toDomain() domain.CapacityConstraint {
	return domain.CapacityConstraint{
		StoreID:         r.StoreID,
		ProductCode:     r.ProductCode,
		MaxUnits:        domain.FromPtr(intPtr(r.MaxUnits)),
		MinDisplayUnits: domain.FromPtr(intPtr(r.MinDisplayUnits)),
		Kind:            domain.ConstraintKind(r.Kind),
		Active:          r.Active,
		UpdatedAt:       r.UpdatedAt,
	}
}

type productClassRow struct {
	ProductCode string `db:"producto_codigo"`
	Class       string `db:"clase"`
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
