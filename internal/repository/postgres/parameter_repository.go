// internal/repository/postgres/parameter_repository.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/repository"
)

type parameterRepository struct {
	db *DB
}

// NewParameterRepository returns the postgres-backed configuration store.
func NewParameterRepository(db *DB) repository.ParameterRepository {
	return &parameterRepository{db: db}
}

const (
	upsertGlobalQuery = `
		INSERT INTO parametros_globales (id, lead_time, ventana_sigma_d, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			lead_time = EXCLUDED.lead_time,
			ventana_sigma_d = EXCLUDED.ventana_sigma_d,
			updated_at = EXCLUDED.updated_at
	`
	upsertThresholdsQuery = `
		INSERT INTO umbrales_abc (id, umbral_a, umbral_b, umbral_c, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			umbral_a = EXCLUDED.umbral_a,
			umbral_b = EXCLUDED.umbral_b,
			umbral_c = EXCLUDED.umbral_c,
			updated_at = NOW()
	`
	upsertServiceLevelQuery = `
		INSERT INTO niveles_servicio (clase, nivel_servicio_pct, z_score, dias_cobertura_max, metodo, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (clase) DO UPDATE SET
			nivel_servicio_pct = EXCLUDED.nivel_servicio_pct,
			z_score = EXCLUDED.z_score,
			dias_cobertura_max = EXCLUDED.dias_cobertura_max,
			metodo = EXCLUDED.metodo,
			updated_at = EXCLUDED.updated_at
	`
)

func (r *parameterRepository) SaveGlobal(ctx context.Context, g domain.GlobalParameters) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertGlobalQuery, g.LeadTime, g.VentanaSigmaD, g.UpdatedAt); err != nil {
			return fmt.Errorf("failed to save global parameters: %w", err)
		}
		return nil
	})
}

func (r *parameterRepository) SaveServiceLevel(ctx context.Context, sl domain.ServiceLevelClass) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		return saveServiceLevel(ctx, tx, sl)
	})
}

func (r *parameterRepository) SaveThresholds(ctx context.Context, t domain.ABCThresholds) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertThresholdsQuery, t.A, t.B, t.C); err != nil {
			return fmt.Errorf("failed to save thresholds: %w", err)
		}
		return nil
	})
}

// SaveSettings writes the whole settings form in one transaction.
func (r *parameterRepository) SaveSettings(ctx context.Context, g domain.GlobalParameters, levels []domain.ServiceLevelClass, t domain.ABCThresholds) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertGlobalQuery, g.LeadTime, g.VentanaSigmaD, g.UpdatedAt); err != nil {
			return fmt.Errorf("failed to save global parameters: %w", err)
		}
		for _, sl := range levels {
			if err := saveServiceLevel(ctx, tx, sl); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, upsertThresholdsQuery, t.A, t.B, t.C); err != nil {
			return fmt.Errorf("failed to save thresholds: %w", err)
		}
		return nil
	})
}

func saveServiceLevel(ctx context.Context, tx *sql.Tx, sl domain.ServiceLevelClass) error {
	_, err := tx.ExecContext(ctx, upsertServiceLevelQuery,
		string(sl.Class),
		nullFloat(sl.ServiceLevelPct),
		nullFloat(sl.ZScore),
		sl.MaxCoverageDays,
		string(sl.Method),
		sl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save service level %s: %w", sl.Class, err)
	}
	return nil
}

func (r *parameterRepository) SaveStoreOverride(ctx context.Context, o domain.StoreOverride) error {
	query := `
		INSERT INTO overrides_tienda (
			tienda_id, lead_time_override,
			dias_cobertura_a, dias_cobertura_b, dias_cobertura_c, dias_cobertura_d,
			activo, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tienda_id) DO UPDATE SET
			lead_time_override = EXCLUDED.lead_time_override,
			dias_cobertura_a = EXCLUDED.dias_cobertura_a,
			dias_cobertura_b = EXCLUDED.dias_cobertura_b,
			dias_cobertura_c = EXCLUDED.dias_cobertura_c,
			dias_cobertura_d = EXCLUDED.dias_cobertura_d,
			activo = EXCLUDED.activo,
			updated_at = EXCLUDED.updated_at
	`

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			o.StoreID,
			nullFloat(o.LeadTime.Ptr()),
			nullInt(o.Coverage.A.Ptr()),
			nullInt(o.Coverage.B.Ptr()),
			nullInt(o.Coverage.C.Ptr()),
			nullInt(o.Coverage.D.Ptr()),
			o.Active,
			o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save store override %s: %w", o.StoreID, err)
		}
		return nil
	})
}

func (r *parameterRepository) DeleteStoreOverride(ctx context.Context, storeID string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM overrides_tienda WHERE tienda_id = $1`, storeID); err != nil {
			return fmt.Errorf("failed to delete store override %s: %w", storeID, err)
		}
		return nil
	})
}

func (r *parameterRepository) SaveCategoryOverride(ctx context.Context, o domain.CategoryCoverageOverride) error {
	query := `
		INSERT INTO overrides_categoria (
			categoria, dias_cobertura_a, dias_cobertura_b, dias_cobertura_c, dias_cobertura_d,
			es_perecedero, activo, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (categoria) DO UPDATE SET
			dias_cobertura_a = EXCLUDED.dias_cobertura_a,
			dias_cobertura_b = EXCLUDED.dias_cobertura_b,
			dias_cobertura_c = EXCLUDED.dias_cobertura_c,
			dias_cobertura_d = EXCLUDED.dias_cobertura_d,
			es_perecedero = EXCLUDED.es_perecedero,
			activo = EXCLUDED.activo,
			updated_at = EXCLUDED.updated_at
	`

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			o.Category,
			o.Coverage.A, o.Coverage.B, o.Coverage.C, o.Coverage.D,
			o.Perishable,
			o.Active,
			o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save category override %s: %w", o.Category, err)
		}
		return nil
	})
}

func (r *parameterRepository) DeleteCategoryOverride(ctx context.Context, category string) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM overrides_categoria WHERE categoria = $1`, category); err != nil {
			return fmt.Errorf("failed to delete category override %s: %w", category, err)
		}
		return nil
	})
}

func (r *parameterRepository) SaveCapacityConstraint(ctx context.Context, c domain.CapacityConstraint) error {
	query := `
		INSERT INTO restricciones_capacidad (
			tienda_id, producto_codigo, capacidad_maxima_unidades, minimo_exhibicion_unidades,
			tipo_restriccion, activo, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tienda_id, producto_codigo) DO UPDATE SET
			capacidad_maxima_unidades = EXCLUDED.capacidad_maxima_unidades,
			minimo_exhibicion_unidades = EXCLUDED.minimo_exhibicion_unidades,
			tipo_restriccion = EXCLUDED.tipo_restriccion,
			activo = EXCLUDED.activo,
			updated_at = EXCLUDED.updated_at
	`

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			c.StoreID,
			c.ProductCode,
			nullInt(c.MaxUnits.Ptr()),
			nullInt(c.MinDisplayUnits.Ptr()),
			string(c.Kind),
			c.Active,
			c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save capacity constraint %s/%s: %w", c.StoreID, c.ProductCode, err)
		}
		return nil
	})
}

func (r *parameterRepository) DeleteCapacityConstraint(ctx context.Context, key domain.CapacityKey) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM restricciones_capacidad WHERE tienda_id = $1 AND producto_codigo = $2`,
			key.StoreID, key.ProductCode)
		if err != nil {
			return fmt.Errorf("failed to delete capacity constraint %s/%s: %w", key.StoreID, key.ProductCode, err)
		}
		return nil
	})
}

// SaveProductClasses replaces the whole tag table with the latest classification.
func (r *parameterRepository) SaveProductClasses(ctx context.Context, classes map[string]domain.ABCClass) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM clases_producto`); err != nil {
			return fmt.Errorf("failed to clear product classes: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO clases_producto (producto_codigo, clase, updated_at) VALUES ($1, $2, NOW())`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for code, c := range classes {
			if _, err := stmt.ExecContext(ctx, code, string(c)); err != nil {
				return fmt.Errorf("failed to insert product class %s: %w", code, err)
			}
		}
		return nil
	})
}

// LoadSnapshot reads every table into a snapshot. Missing singleton rows fall
// back to the factory defaults so a fresh database is usable.
func (r *parameterRepository) LoadSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	snap := domain.NewSnapshot()

	var globals []globalRow
	if err := sqlx.SelectContext(ctx, r.db, &globals,
		`SELECT lead_time, ventana_sigma_d, updated_at FROM parametros_globales WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("failed to load global parameters: %w", err)
	}
	if len(globals) > 0 {
		snap.Global = globals[0].toDomain()
	}

	var thresholds []domain.ABCThresholds
	if err := sqlx.SelectContext(ctx, r.db, &thresholds,
		`SELECT umbral_a, umbral_b, umbral_c FROM umbrales_abc WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("failed to load thresholds: %w", err)
	}
	if len(thresholds) > 0 {
		snap.Thresholds = thresholds[0]
	}

	var levels []serviceLevelRow
	if err := sqlx.SelectContext(ctx, r.db, &levels, `
		SELECT clase, nivel_servicio_pct, z_score, dias_cobertura_max, metodo, updated_at
		FROM niveles_servicio
	`); err != nil {
		return nil, fmt.Errorf("failed to load service levels: %w", err)
	}
	for _, row := range levels {
		sl := row.toDomain()
		snap.ServiceLevels[sl.Class] = sl
	}

	var stores []storeOverrideRow
	if err := sqlx.SelectContext(ctx, r.db, &stores, `
		SELECT tienda_id, lead_time_override,
			dias_cobertura_a, dias_cobertura_b, dias_cobertura_c, dias_cobertura_d,
			activo, updated_at
		FROM overrides_tienda
	`); err != nil {
		return nil, fmt.Errorf("failed to load store overrides: %w", err)
	}
	for _, row := range stores {
		snap.StoreOverrides[row.StoreID] = row.toDomain()
	}

	var categories []categoryOverrideRow
	if err := sqlx.SelectContext(ctx, r.db, &categories, `
		SELECT categoria, dias_cobertura_a, dias_cobertura_b, dias_cobertura_c, dias_cobertura_d,
			es_perecedero, activo, updated_at
		FROM overrides_categoria
	`); err != nil {
		return nil, fmt.Errorf("failed to load category overrides: %w", err)
	}
	for _, row := range categories {
		o := row.toDomain()
		snap.CategoryOverrides[o.Category] = o
	}

	var constraints []capacityRow
	if err := sqlx.SelectContext(ctx, r.db, &constraints, `
		SELECT tienda_id, producto_codigo, capacidad_maxima_unidades, minimo_exhibicion_unidades,
			tipo_restriccion, activo, updated_at
		FROM restricciones_capacidad
	`); err != nil {
		return nil, fmt.Errorf("failed to load capacity constraints: %w", err)
	}
	for _, row := range constraints {
		c := row.toDomain()
		snap.Capacity[c.Key()] = c
	}

	var tags []productClassRow
	if err := sqlx.SelectContext(ctx, r.db, &tags, `SELECT producto_codigo, clase FROM clases_producto`); err != nil {
		return nil, fmt.Errorf("failed to load product classes: %w", err)
	}
	for _, row := range tags {
		snap.ProductClasses[row.ProductCode] = domain.ABCClass(row.Class)
	}

	return snap, nil
}
