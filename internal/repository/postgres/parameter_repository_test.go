package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-params/internal/domain"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return Wrap(sqlx.NewDb(mockDB, "postgres")), mock
}

func TestParameterRepository_SaveGlobal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParameterRepository(db)
	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO parametros_globales").
		WithArgs(2.5, 30, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveGlobal(context.Background(), domain.GlobalParameters{LeadTime: 2.5, VentanaSigmaD: 30, UpdatedAt: at})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParameterRepository_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParameterRepository(db)
	boom := errors.New("constraint violated")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO umbrales_abc").WithArgs(50, 200, 800).WillReturnError(boom)
	mock.ExpectRollback()

	err := repo.SaveThresholds(context.Background(), domain.DefaultABCThresholds())
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParameterRepository_SaveSettingsSingleTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParameterRepository(db)
	pct, z := 95.0, 1.65

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO parametros_globales").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO niveles_servicio").
		WithArgs("B", pct, z, 14, "estadistico", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO niveles_servicio").
		WithArgs("D", nil, nil, 30, "heuristico", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO umbrales_abc").WithArgs(10, 20, 30).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	levels := []domain.ServiceLevelClass{
		{Class: domain.ClassB, ServiceLevelPct: &pct, ZScore: &z, MaxCoverageDays: 14, Method: domain.MethodStatistical},
		{Class: domain.ClassD, MaxCoverageDays: 30, Method: domain.MethodHeuristic},
	}
	err := repo.SaveSettings(context.Background(), domain.DefaultGlobalParameters(), levels, domain.ABCThresholds{A: 10, B: 20, C: 30})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParameterRepository_SaveStoreOverrideWritesNulls(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParameterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO overrides_tienda").
		WithArgs("T1", nil, 5, nil, nil, 40, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveStoreOverride(context.Background(), domain.StoreOverride{
		StoreID:  "T1",
		Coverage: domain.CoverageOverrides{A: domain.Set(5), D: domain.Set(40)},
		Active:   true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParameterRepository_DeleteCapacityConstraint(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParameterRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM restricciones_capacidad").
		WithArgs("T1", "P1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.DeleteCapacityConstraint(context.Background(), domain.CapacityKey{StoreID: "T1", ProductCode: "P1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParameterRepository_LoadSnapshot(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewParameterRepository(db)
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM parametros_globales").
		WillReturnRows(sqlmock.NewRows([]string{"lead_time", "ventana_sigma_d", "updated_at"}).AddRow(2.0, 45, at))
	mock.ExpectQuery("FROM umbrales_abc").
		WillReturnRows(sqlmock.NewRows([]string{"umbral_a", "umbral_b", "umbral_c"}))
	mock.ExpectQuery("FROM niveles_servicio").
		WillReturnRows(sqlmock.NewRows([]string{"clase", "nivel_servicio_pct", "z_score", "dias_cobertura_max", "metodo", "updated_at"}).
			AddRow("A", 99.0, 2.33, 5, "estadistico", at).
			AddRow("D", nil, nil, 40, "heuristico", at))
	mock.ExpectQuery("FROM overrides_tienda").
		WillReturnRows(sqlmock.NewRows([]string{"tienda_id", "lead_time_override", "dias_cobertura_a", "dias_cobertura_b", "dias_cobertura_c", "dias_cobertura_d", "activo", "updated_at"}).
			AddRow("T1", 3.0, nil, 9, nil, nil, true, at))
	mock.ExpectQuery("FROM overrides_categoria").
		WillReturnRows(sqlmock.NewRows([]string{"categoria", "dias_cobertura_a", "dias_cobertura_b", "dias_cobertura_c", "dias_cobertura_d", "es_perecedero", "activo", "updated_at"}).
			AddRow("lacteos", 2, 3, 4, 5, true, true, at))
	mock.ExpectQuery("FROM restricciones_capacidad").
		WillReturnRows(sqlmock.NewRows([]string{"tienda_id", "producto_codigo", "capacidad_maxima_unidades", "minimo_exhibicion_unidades", "tipo_restriccion", "activo", "updated_at"}).
			AddRow("T1", "P1", 100, nil, "freezer", true, at))
	mock.ExpectQuery("FROM clases_producto").
		WillReturnRows(sqlmock.NewRows([]string{"producto_codigo", "clase"}).AddRow("P1", "A"))

	snap, err := repo.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2.0, snap.Global.LeadTime)
	assert.Equal(t, domain.DefaultABCThresholds(), snap.Thresholds)
	assert.Equal(t, 99.0, *snap.ServiceLevels[domain.ClassA].ServiceLevelPct)
	assert.Nil(t, snap.ServiceLevels[domain.ClassD].ServiceLevelPct)
	assert.Equal(t, 14, snap.ServiceLevels[domain.ClassB].MaxCoverageDays)

	so := snap.StoreOverrides["T1"]
	assert.Equal(t, 3.0, so.LeadTime.OrElse(0))
	assert.False(t, so.Coverage.A.IsSet())
	assert.Equal(t, 9, so.Coverage.B.OrElse(0))

	_, ok := snap.ActiveCategoryOverride("LACTEOS")
	assert.True(t, ok)

	c, ok := snap.ActiveCapacityConstraint("T1", "P1")
	require.True(t, ok)
	assert.Equal(t, 100, c.MaxUnits.OrElse(0))
	assert.False(t, c.MinDisplayUnits.IsSet())
	assert.Equal(t, domain.ClassA, snap.ProductClass("P1"))
}

func TestSalesRepository_TrailingSales(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	asOf := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM ventas_diarias").
		WithArgs(asOf, 30).
		WillReturnRows(sqlmock.NewRows([]string{"tienda_id", "producto_codigo", "unidades_30d"}).
			AddRow("T1", "P1", 120.0).
			AddRow("T1", "P2", 4.5))

	repo := NewSalesRepository(sqlx.NewDb(mockDB, "pgx"))
	sales, err := repo.TrailingSales(context.Background(), asOf, 0)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "P1", sales[0].ProductCode)
	assert.Equal(t, 4.5, sales[1].UnitsSold)
	assert.NoError(t, mock.ExpectationsWereMet())
}

