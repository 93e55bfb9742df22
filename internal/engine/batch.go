package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/autopo-params/internal/domain"
)

// DefaultResolveWorkers is used when ResolveBatch is given a non-positive worker count.
const DefaultResolveWorkers = 4

// ResolveBatch resolves queries concurrently against one snapshot. Results keep
// the order of queries. The first error or a cancelled context discards every
// result; resolution has no side effects, so nothing needs rolling back.
func ResolveBatch(ctx context.Context, r *Resolver, snap *domain.Snapshot, queries []Query, workers int) ([]domain.EffectiveParameters, error) {
	if workers < 1 {
		workers = DefaultResolveWorkers
	}

	results := make([]domain.EffectiveParameters, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, q := range queries {
		if gctx.Err() != nil {
			break
		}
		i, q := i, q
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			params, err := r.Resolve(snap, q)
			if err != nil {
				return err
			}
			results[i] = params
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
