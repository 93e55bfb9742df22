package postgres

// schema is idempotent. Singleton tables are keyed by id = 1.
const schema = `
CREATE TABLE IF NOT EXISTS parametros_globales (
	id              SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	lead_time       NUMERIC(4,1) NOT NULL,
	ventana_sigma_d INTEGER NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS umbrales_abc (
	id         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	umbral_a   INTEGER NOT NULL,
	umbral_b   INTEGER NOT NULL,
	umbral_c   INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (umbral_a > 0 AND umbral_a < umbral_b AND umbral_b < umbral_c)
);

CREATE TABLE IF NOT EXISTS niveles_servicio (
	clase              CHAR(1) PRIMARY KEY CHECK (clase IN ('A','B','C','D')),
	nivel_servicio_pct NUMERIC(5,2),
	z_score            NUMERIC(4,2),
	dias_cobertura_max INTEGER NOT NULL,
	metodo             TEXT NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS overrides_tienda (
	tienda_id          TEXT PRIMARY KEY,
	lead_time_override NUMERIC(4,1),
	dias_cobertura_a   INTEGER,
	dias_cobertura_b   INTEGER,
	dias_cobertura_c   INTEGER,
	dias_cobertura_d   INTEGER,
	activo             BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS overrides_categoria (
	categoria        TEXT PRIMARY KEY,
	dias_cobertura_a INTEGER NOT NULL,
	dias_cobertura_b INTEGER NOT NULL,
	dias_cobertura_c INTEGER NOT NULL,
	dias_cobertura_d INTEGER NOT NULL,
	es_perecedero    BOOLEAN NOT NULL DEFAULT FALSE,
	activo           BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS restricciones_capacidad (
	tienda_id                  TEXT NOT NULL,
	producto_codigo            TEXT NOT NULL,
	capacidad_maxima_unidades  INTEGER,
	minimo_exhibicion_unidades INTEGER,
	tipo_restriccion           TEXT NOT NULL DEFAULT '',
	activo                     BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (tienda_id, producto_codigo)
);

CREATE TABLE IF NOT EXISTS clases_producto (
	producto_codigo TEXT PRIMARY KEY,
	clase           CHAR(1) NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ventas_diarias (
	tienda_id       TEXT NOT NULL,
	producto_codigo TEXT NOT NULL,
	fecha           DATE NOT NULL,
	unidades        NUMERIC(12,2) NOT NULL,
	PRIMARY KEY (tienda_id, producto_codigo, fecha)
);
`
