package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/autopo-params/internal/config"
	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/engine"
	"github.com/andresuchdata/autopo-params/internal/repository/postgres"
	"github.com/andresuchdata/autopo-params/internal/service"
	"github.com/andresuchdata/autopo-params/internal/storage"
	"github.com/andresuchdata/autopo-params/internal/store"
	"github.com/andresuchdata/autopo-params/pkg/logger"
)

type contextKey string

const dbKey contextKey = "db"

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "paramsctl",
		Usage: "Inspect and maintain replenishment parameters",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "classify",
				Usage: "Rank trailing sales and tag products with their ABC class",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{
						Name:    "scope",
						Usage:   "Ranking scope: network or store",
						Value:   string(engine.ScopeNetwork),
						EnvVars: []string{"ENGINE_CLASSIFICATION_SCOPE"},
					},
					&cli.IntFlag{
						Name:    "window-days",
						Usage:   "Trailing sales window",
						Value:   30,
						EnvVars: []string{"ENGINE_SALES_WINDOW_DAYS"},
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Print the classes without tagging products",
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: runClassify,
			},
			{
				Name:  "resolve",
				Usage: "Print the effective parameters for one store and product",
				Flags: []cli.Flag{
					newDBURLFlag(),
					&cli.StringFlag{Name: "store", Required: true},
					&cli.StringFlag{Name: "product"},
					&cli.StringFlag{Name: "category"},
					&cli.StringFlag{
						Name:  "class",
						Usage: "ABC class; defaults to the product's tagged class",
					},
				},
				Before: initDB,
				After:  closeDB,
				Action: runResolve,
			},
			{
				Name:  "snapshots",
				Usage: "Read parameter snapshots exported to object storage (STORAGE_* settings)",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:  "version",
						Usage: "Version to print; latest when unset",
					},
					&cli.BoolFlag{
						Name:  "list",
						Usage: "List exported versions instead of printing one",
					},
				},
				Action: runSnapshots,
			},
			{
				Name:      "zscore",
				Usage:     "Print the z-score for one or more service levels",
				ArgsUsage: "<pct> [pct...]",
				Action:    runZScore,
			},
		},
	}
}

func initDB(c *cli.Context) error {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(c.Context); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	c.Context = context.WithValue(c.Context, dbKey, sqlx.NewDb(db, "pgx"))
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey).(*sqlx.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFromContext(c *cli.Context) (*sqlx.DB, error) {
	db, ok := c.Context.Value(dbKey).(*sqlx.DB)
	if !ok || db == nil {
		return nil, errors.New("database connection not found in context")
	}
	return db, nil
}

// loadStore hydrates a parameter store backed by the database, the same way
// the server does on startup.
func loadStore(ctx context.Context, db *sqlx.DB) (*store.ParameterStore, error) {
	repo := postgres.NewParameterRepository(postgres.Wrap(db))
	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	st := store.New(store.WithPersister(repo))
	if err := st.Load(ctx, snap); err != nil {
		return nil, err
	}
	return st, nil
}

func runClassify(c *cli.Context) error {
	scope, err := engine.ParseScope(c.String("scope"))
	if err != nil {
		return err
	}

	db, err := dbFromContext(c)
	if err != nil {
		return err
	}
	st, err := loadStore(c.Context, db)
	if err != nil {
		return err
	}

	svc := service.NewClassificationService(postgres.NewSalesRepository(db), st, scope, c.Int("window-days"), nil)
	run, err := svc.Classify(c.Context, service.ClassifyOptions{Scope: scope, DryRun: c.Bool("dry-run")})
	if err != nil {
		return err
	}

	return printRun(c.App.Writer, run)
}

func printRun(w io.Writer, run *service.ClassificationRun) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", run.ID)
	fmt.Fprintf(tw, "scope\t%s\n", run.Scope)
	fmt.Fprintf(tw, "thresholds\t%d / %d / %d\n", run.Thresholds.A, run.Thresholds.B, run.Thresholds.C)
	fmt.Fprintf(tw, "products\t%d\n", run.Products)
	for _, class := range domain.AllClasses {
		fmt.Fprintf(tw, "class %s\t%s\t%d\n", class, class.Label(), run.Counts[class])
	}
	if run.DryRun {
		fmt.Fprintln(tw, "dry run\tno products tagged")
	} else {
		fmt.Fprintf(tw, "snapshot\tv%d\n", run.SnapshotVersion)
	}
	return tw.Flush()
}

func runResolve(c *cli.Context) error {
	db, err := dbFromContext(c)
	if err != nil {
		return err
	}
	st, err := loadStore(c.Context, db)
	if err != nil {
		return err
	}

	snap := st.Snapshot()
	class := snap.ProductClass(c.String("product"))
	if raw := c.String("class"); raw != "" {
		if class, err = domain.ParseClass(raw); err != nil {
			return err
		}
	}

	params, err := engine.NewResolver().Resolve(snap, engine.Query{
		StoreID:     c.String("store"),
		ProductCode: c.String("product"),
		Category:    c.String("category"),
		Class:       class,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(params)
}

func runSnapshots(c *cli.Context) error {
	objects, err := storage.NewMinioClient(config.Load().Storage)
	if err != nil {
		return err
	}
	return printSnapshots(c.Context, c.App.Writer, storage.NewSnapshotPublisher(objects), c.Uint64("version"), c.Bool("list"))
}

// exportedSnapshot mirrors GET /params/snapshot: capacity travels as a list.
type exportedSnapshot struct {
	Snapshot    *domain.Snapshot            `json:"snapshot"`
	Constraints []domain.CapacityConstraint `json:"capacity_constraints"`
}

func printSnapshots(ctx context.Context, w io.Writer, publisher *storage.SnapshotPublisher, version uint64, list bool) error {
	if list {
		versions, err := publisher.Versions(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "version\tobject")
		for _, v := range versions {
			fmt.Fprintf(tw, "v%d\t%s\n", v, storage.SnapshotKey(v))
		}
		return tw.Flush()
	}

	var (
		snap *domain.Snapshot
		err  error
	)
	if version == 0 {
		snap, err = publisher.Latest(ctx)
	} else {
		snap, err = publisher.Version(ctx, version)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exportedSnapshot{Snapshot: snap, Constraints: snap.CapacityConstraints()})
}

func runZScore(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one service level is required")
	}

	table := engine.DefaultZScoreTable()
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "nivel_servicio_pct\tz_score")
	for _, arg := range c.Args().Slice() {
		pct, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("invalid service level %q: %w", arg, err)
		}
		if err := domain.ValidateServiceLevel(domain.ClassA, &pct, domain.MinMaxCoverageDays); err != nil {
			return err
		}
		fmt.Fprintf(tw, "%g\t%.2f\n", pct, table.RoundedZScoreFor(pct))
	}
	return tw.Flush()
}
