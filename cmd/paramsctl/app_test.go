package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/autopo-params/internal/domain"
	"github.com/andresuchdata/autopo-params/internal/engine"
	"github.com/andresuchdata/autopo-params/internal/service"
	"github.com/andresuchdata/autopo-params/internal/storage"
)

func TestZScoreCommand(t *testing.T) {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out

	require.NoError(t, app.Run([]string{"paramsctl", "zscore", "97.25", "99"}))
	assert.Contains(t, out.String(), "97.25")
	assert.Contains(t, out.String(), "1.92")
	assert.Contains(t, out.String(), "2.33")
}

func TestZScoreCommandRejectsInput(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "not a number", args: []string{"paramsctl", "zscore", "high"}},
		{name: "below range", args: []string{"paramsctl", "zscore", "50"}},
		{name: "NaN", args: []string{"paramsctl", "zscore", "NaN"}},
		{name: "infinite", args: []string{"paramsctl", "zscore", "+Inf"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := newApp()
			app.Writer = &bytes.Buffer{}
			assert.Error(t, app.Run(tc.args))
		})
	}
}

func TestClassifyRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))
	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}

	err := app.Run([]string{"paramsctl", "classify"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db-url")
}

func TestPrintRun(t *testing.T) {
	var out bytes.Buffer
	run := &service.ClassificationRun{
		ID:              uuid.MustParse("6f1c1f5e-1d1a-4a57-9a57-2b0b6c1f0001"),
		Scope:           engine.ScopeStore,
		Thresholds:      domain.ABCThresholds{A: 50, B: 200, C: 800},
		StartedAt:       time.Now(),
		Products:        3,
		Counts:          map[domain.ABCClass]int{domain.ClassA: 2, domain.ClassD: 1},
		SnapshotVersion: 12,
	}

	require.NoError(t, printRun(&out, run))
	assert.Contains(t, out.String(), "6f1c1f5e-1d1a-4a57-9a57-2b0b6c1f0001")
	assert.Contains(t, out.String(), "50 / 200 / 800")
	assert.Contains(t, out.String(), "v12")
	assert.Regexp(t, `class A\s+High velocity\s+2`, out.String())
	assert.Regexp(t, `class B\s+Medium velocity\s+0`, out.String())
	assert.Regexp(t, `class D\s+Tail\s+1`, out.String())
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryObjects) ListObjects(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.ObjectInfo, 0, len(m.objects))
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryObjects) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
	}
	return data, nil
}

func (m *memoryObjects) UploadObject(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func TestPrintSnapshots(t *testing.T) {
	ctx := context.Background()
	publisher := storage.NewSnapshotPublisher(&memoryObjects{objects: make(map[string][]byte)})

	first := domain.NewSnapshot()
	first.Version = 1
	second := domain.NewSnapshot()
	second.Version = 2
	second.Global.LeadTime = 2.5
	key := domain.CapacityKey{StoreID: "T1", ProductCode: "P1"}
	second.Capacity[key] = domain.CapacityConstraint{StoreID: "T1", ProductCode: "P1", MaxUnits: domain.Set(100), Active: true}
	require.NoError(t, publisher.Publish(ctx, first))
	require.NoError(t, publisher.Publish(ctx, second))

	t.Run("list", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printSnapshots(ctx, &out, publisher, 0, true))
		assert.Regexp(t, `v1\s+snapshots/v1.json`, out.String())
		assert.Regexp(t, `v2\s+snapshots/v2.json`, out.String())
	})

	t.Run("latest", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printSnapshots(ctx, &out, publisher, 0, false))

		var doc exportedSnapshot
		require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
		assert.Equal(t, uint64(2), doc.Snapshot.Version)
		assert.Equal(t, 2.5, doc.Snapshot.Global.LeadTime)
		require.Len(t, doc.Constraints, 1)
		assert.Equal(t, "P1", doc.Constraints[0].ProductCode)
	})

	t.Run("pinned version", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printSnapshots(ctx, &out, publisher, 1, false))

		var doc exportedSnapshot
		require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
		assert.Equal(t, uint64(1), doc.Snapshot.Version)
		assert.Empty(t, doc.Constraints)
	})

	t.Run("missing version", func(t *testing.T) {
		err := printSnapshots(ctx, &bytes.Buffer{}, publisher, 9, false)
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	})
}
