// internal/repository/parameter_repository.go
package repository

import (
	"context"
	"time"

	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/engine"
	"github.com/andresuchdata/autopo-params/internal/store"
)

// ParameterRepository persists every configuration layer and can rebuild a
// snapshot from it at startup.
type ParameterRepository interface {
	store.Persister
	LoadSnapshot(ctx context.Context) (*domain.Snapshot, error)
}

// SalesRepository reads the trailing sales used to rank products.
type SalesRepository interface {
	// TrailingSales returns units sold per (store, product) in the window ending at asOf.
	TrailingSales(ctx context.Context, asOf time.Time, days int) ([]engine.StoreSales, error)
}
