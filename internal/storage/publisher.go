package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-params/internal/domain"
)

const (
	snapshotPrefix = "snapshots/"
	latestKey      = snapshotPrefix + "latest.json"
)

// snapshotDocument is the exported form. Capacity is keyed by a struct in
// memory, so it travels as a list.
type snapshotDocument struct {
	ExportedAt  time.Time                   `json:"exported_at"`
	Snapshot    *domain.Snapshot            `json:"snapshot"`
	Constraints []domain.CapacityConstraint `json:"capacity_constraints"`
}

// SnapshotPublisher exports committed snapshots as JSON so downstream
// forecasting jobs can read the exact configuration a run used.
type SnapshotPublisher struct {
	storage ObjectStorage
	now     func() time.Time
}

func NewSnapshotPublisher(s ObjectStorage) *SnapshotPublisher {
	return &SnapshotPublisher{storage: s, now: time.Now}
}

// SnapshotKey returns the object key of a version.
func SnapshotKey(version uint64) string {
	return fmt.Sprintf("%sv%d.json", snapshotPrefix, version)
}

// Publish writes the versioned object first and then moves latest.json.
func (p *SnapshotPublisher) Publish(ctx context.Context, snap *domain.Snapshot) error {
	constraints := snap.CapacityConstraints()
	sort.Slice(constraints, func(i, j int) bool {
		if constraints[i].StoreID != constraints[j].StoreID {
			return constraints[i].StoreID < constraints[j].StoreID
		}
		return constraints[i].ProductCode < constraints[j].ProductCode
	})

	payload, err := json.Marshal(snapshotDocument{
		ExportedAt:  p.now().UTC(),
		Snapshot:    snap,
		Constraints: constraints,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot v%d: %w", snap.Version, err)
	}

	if err := p.storage.UploadObject(ctx, SnapshotKey(snap.Version), payload); err != nil {
		return err
	}
	return p.storage.UploadObject(ctx, latestKey, payload)
}

// Latest reads back the most recently published snapshot.
func (p *SnapshotPublisher) Latest(ctx context.Context) (*domain.Snapshot, error) {
	return p.read(ctx, latestKey)
}

// Version reads back a specific published snapshot.
func (p *SnapshotPublisher) Version(ctx context.Context, version uint64) (*domain.Snapshot, error) {
	return p.read(ctx, SnapshotKey(version))
}

// Versions lists the published versions in ascending order.
func (p *SnapshotPublisher) Versions(ctx context.Context) ([]uint64, error) {
	objects, err := p.storage.ListObjects(ctx, snapshotPrefix)
	if err != nil {
		return nil, err
	}

	versions := make([]uint64, 0, len(objects))
	for _, o := range objects {
		name := strings.TrimPrefix(o.Key, snapshotPrefix)
		if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".json") {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".json"), 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

func (p *SnapshotPublisher) read(ctx context.Context, key string) (*domain.Snapshot, error) {
	payload, err := p.storage.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}

	var doc snapshotDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if doc.Snapshot == nil {
		return nil, fmt.Errorf("decode %s: missing snapshot", key)
	}

	snap := doc.Snapshot
	if snap.StoreOverrides == nil {
		snap.StoreOverrides = make(map[string]domain.StoreOverride)
	}
	if snap.CategoryOverrides == nil {
		snap.CategoryOverrides = make(map[string]domain.CategoryCoverageOverride)
	}
	if snap.ProductClasses == nil {
		snap.ProductClasses = make(map[string]domain.ABCClass)
	}
	snap.Capacity = make(map[domain.CapacityKey]domain.CapacityConstraint, len(doc.Constraints))
	for _, c := range doc.Constraints {
		snap.Capacity[c.Key()] = c
	}
	return snap, nil
}
