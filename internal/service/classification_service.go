package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/engine"
	"github.com/andresuchdata/autopo-params/internal/metrics"
	"github.com/andresuchdata/autopo-params/internal/repository"
	"github.com/andresuchdata/autopo-params/internal/store"
)

const defaultSalesWindowDays = 30

// ClassificationRun summarizes one ABC classification.
type ClassificationRun struct {
	ID              uuid.UUID                  `json:"id"`
	Scope           engine.Scope               `json:"scope"`
	DryRun          bool                       `json:"dry_run"`
	Thresholds      domain.ABCThresholds       `json:"thresholds"`
	StartedAt       time.Time                  `json:"started_at"`
	FinishedAt      time.Time                  `json:"finished_at"`
	Products        int                        `json:"products"`
	Counts          map[domain.ABCClass]int    `json:"counts"`
	Classes         map[string]domain.ABCClass `json:"classes,omitempty"`
	SnapshotVersion uint64                     `json:"snapshot_version"`
}

// ClassifyOptions selects how a run ranks and whether it tags products.
type ClassifyOptions struct {
	Scope  engine.Scope
	DryRun bool
}

// ClassificationService ranks trailing sales against the current thresholds
// and records the resulting classes in the parameter store.
type ClassificationService struct {
	sales      repository.SalesRepository
	store      *store.ParameterStore
	scope      engine.Scope
	windowDays int
	metrics    *metrics.Metrics
	now        func() time.Time

	mu      sync.Mutex
	lastRun *ClassificationRun
}

func NewClassificationService(sales repository.SalesRepository, st *store.ParameterStore, scope engine.Scope, windowDays int, m *metrics.Metrics) *ClassificationService {
	if windowDays <= 0 {
		windowDays = defaultSalesWindowDays
	}
	if scope == "" {
		scope = engine.ScopeNetwork
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &ClassificationService{
		sales:      sales,
		store:      st,
		scope:      scope,
		windowDays: windowDays,
		metrics:    m,
		now:        time.Now,
	}
}

// Run classifies with the configured scope and tags products.
func (s *ClassificationService) Run(ctx context.Context) (*ClassificationRun, error) {
	return s.Classify(ctx, ClassifyOptions{Scope: s.scope})
}

// Classify runs one classification. With store scope a product ranked in
// several stores is tagged with the best class it earned in any of them.
func (s *ClassificationService) Classify(ctx context.Context, opts ClassifyOptions) (run *ClassificationRun, err error) {
	started := s.now()
	defer func() { s.metrics.ObserveClassification(started, err) }()

	scope := opts.Scope
	if scope == "" {
		scope = s.scope
	}

	snap := s.store.Snapshot()
	run = &ClassificationRun{
		ID:         uuid.New(),
		Scope:      scope,
		DryRun:     opts.DryRun,
		Thresholds: snap.Thresholds,
		StartedAt:  started,
		Counts:     make(map[domain.ABCClass]int, len(domain.AllClasses)),
	}
	logger := log.With().Str("run_id", run.ID.String()).Str("scope", string(scope)).Logger()

	records, err := s.sales.TrailingSales(ctx, started, s.windowDays)
	if err != nil {
		return nil, fmt.Errorf("classification %s: %w", run.ID, err)
	}

	scoped, err := engine.ClassifyScoped(records, snap.Thresholds, scope)
	if err != nil {
		return nil, err
	}

	classes := mergeBestClass(scoped)
	for _, c := range classes {
		run.Counts[c]++
	}
	run.Products = len(classes)
	run.Classes = classes

	if opts.DryRun {
		run.SnapshotVersion = snap.Version
	} else {
		tagged, err := s.store.TagProductClasses(ctx, classes)
		if err != nil {
			return nil, fmt.Errorf("classification %s: %w", run.ID, err)
		}
		run.SnapshotVersion = tagged.Version
	}
	run.FinishedAt = s.now()

	logger.Info().
		Int("products", run.Products).
		Int("class_a", run.Counts[domain.ClassA]).
		Int("class_b", run.Counts[domain.ClassB]).
		Int("class_c", run.Counts[domain.ClassC]).
		Int("class_d", run.Counts[domain.ClassD]).
		Bool("dry_run", run.DryRun).
		Msg("classification finished")

	s.mu.Lock()
	s.lastRun = run
	s.mu.Unlock()
	return run, nil
}

// LastRun returns the most recent successful run, or nil.
func (s *ClassificationService) LastRun() *ClassificationRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// mergeBestClass flattens per-scope results; A < B < C < D so the smallest wins.
func mergeBestClass(scoped map[string]map[string]domain.ABCClass) map[string]domain.ABCClass {
	out := make(map[string]domain.ABCClass)
	for _, classes := range scoped {
		for code, c := range classes {
			if cur, ok := out[code]; !ok || c < cur {
				out[code] = c
			}
		}
	}
	return out
}
