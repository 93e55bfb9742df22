package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/autopo-params/internal/engine"
	"github.com/andresuchdata/autopo-params/internal/repository"
)

type salesRepository struct {
	db sqlx.QueryerContext
}

// NewSalesRepository reads ventas_diarias through any sqlx handle, so the
// server can pass its lib/pq pool and the CLI a pgx-backed one.
func NewSalesRepository(db sqlx.QueryerContext) repository.SalesRepository {
	return &salesRepository{db: db}
}

func (r *salesRepository) TrailingSales(ctx context.Context, asOf time.Time, days int) ([]engine.StoreSales, error) {
	if days <= 0 {
		days = 30
	}

	query := `
		SELECT
			tienda_id,
			producto_codigo,
			COALESCE(SUM(unidades), 0) AS unidades_30d
		FROM ventas_diarias
		WHERE fecha > $1::date - $2::int
			AND fecha <= $1::date
		GROUP BY tienda_id, producto_codigo
		ORDER BY tienda_id, producto_codigo
	`

	var sales []engine.StoreSales
	if err := sqlx.SelectContext(ctx, r.db, &sales, query, asOf, days); err != nil {
		return nil, fmt.Errorf("error getting trailing sales: %w", err)
	}

	return sales, nil
}
