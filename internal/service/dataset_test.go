package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-poi/internal/feature"
	"github.com/joeblew999/plat-poi/internal/filter"
	"github.com/joeblew999/plat-poi/internal/metadata"
)

const (
	testDetails = `{
  "M1": {"name": "Park A", "amenities": ["Seating"]},
  "M2": {"name": "Plaza B", "amenities": ["Seating", "Restrooms"]}
}`
	testMetadata = `
categories:
  - id: amenities
    policy: all
    values:
      - value: Seating
      - value: Restrooms
`
	testGeoJSON = `{"type":"FeatureCollection","features":[
  {"type":"Feature","geometry":{"type":"Point","coordinates":[-73.98,40.75]},"properties":{"id":"M1","amenities":["Seating"]}},
  {"type":"Feature","geometry":{"type":"Point","coordinates":[-73.97,40.76]},"properties":{"id":"M2","amenities":["Seating","Restrooms"]}},
  {"type":"Feature","geometry":{"type":"Point","coordinates":[-73.96,40.77]},"properties":{"id":"M3"}}
]}`
)

func writeDataset(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultDetailsFile), []byte(testDetails), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultMetadataFile), []byte(testMetadata), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultGeoJSONFile), []byte(testGeoJSON), 0o644))
}

func newTestService(t *testing.T, dir string) *DatasetService {
	t.Helper()
	return NewDatasetService(Config{DataDir: dir}, feature.NewStore(), NewEventBus(), zerolog.Nop())
}

func TestDatasetLoad(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	svc := newTestService(t, dir)

	events, cancel := svc.Bus().Subscribe()
	defer cancel()

	var hooked metadata.Document
	svc.OnLoad(func(doc metadata.Document) { hooked = doc })

	require.NoError(t, svc.Load())

	info := svc.Info()
	assert.Equal(t, 2, info.Details)
	assert.Equal(t, 3, info.Rendered)
	assert.Equal(t, 1, info.Categories)
	assert.False(t, info.LoadedAt.IsZero())
	assert.Len(t, hooked.Categories, 1)

	rec, err := svc.Store().Get("M2")
	require.NoError(t, err)
	assert.Equal(t, "Plaza B", rec.Name())

	assert.Equal(t, []filter.Definition{{ID: "amenities", Attribute: "amenities", Policy: filter.All}}, svc.Definitions())

	select {
	case ev := <-events:
		assert.Equal(t, "dataset", ev.Resource)
		assert.Equal(t, "reloaded", ev.Action)
	case <-time.After(time.Second):
		t.Fatal("no reload event")
	}
}

func TestDatasetLoadRunsHooksInOrder(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	svc := newTestService(t, dir)

	var calls []string
	svc.OnLoad(func(metadata.Document) { calls = append(calls, "first") })
	svc.OnLoad(func(metadata.Document) { calls = append(calls, "second") })

	require.NoError(t, svc.Load())
	require.NoError(t, svc.Load())
	assert.Equal(t, []string{"first", "second", "first", "second"}, calls)
}

func TestDatasetLoadMissingFilesDegrades(t *testing.T) {
	svc := newTestService(t, t.TempDir())
	require.NoError(t, svc.Load())

	info := svc.Info()
	assert.Zero(t, info.Details)
	assert.Zero(t, info.Rendered)
	assert.Empty(t, svc.Definitions())

	total, page := svc.Features(filter.Predicate{}, 0, 10)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func TestDatasetLoadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	svc := newTestService(t, dir)
	require.NoError(t, svc.Load())

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultMetadataFile), []byte("categories:\n  - id: x\n    policy: most\n"), 0o644))
	assert.Error(t, svc.Load())

	assert.Equal(t, 1, svc.Info().Categories)
	assert.Equal(t, 2, svc.Store().Len())
}

func TestDatasetFeaturesFiltered(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	svc := newTestService(t, dir)
	require.NoError(t, svc.Load())

	total, page := svc.Features(filter.Predicate{}, 0, 0)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 3)

	r := filter.NewRegistry()
	r.Register(svc.Definitions())
	r.Toggle("amenities", "Seating")
	r.Toggle("amenities", "Restrooms")

	total, page = svc.Features(filter.Compile(r), 0, 10)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, "M2", page[0].ID)
	assert.InDelta(t, -73.97, page[0].Lon, 1e-9)
	assert.InDelta(t, 40.76, page[0].Lat, 1e-9)
}

func TestDatasetFeaturesPagination(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	svc := newTestService(t, dir)
	require.NoError(t, svc.Load())

	total, page := svc.Features(filter.Predicate{}, 1, 1)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "M2", page[0].ID)

	total, page = svc.Features(filter.Predicate{}, 5, 1)
	assert.Equal(t, 3, total)
	assert.Empty(t, page)
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeDataset(t, dir)
	svc := newTestService(t, dir)
	require.NoError(t, svc.Load())

	events, cancel := svc.Bus().Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Watch(ctx, 20*time.Millisecond) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultDetailsFile), []byte(`{"M9":{"name":"New"}}`), 0o644))

	select {
	case ev := <-events:
		assert.Equal(t, "reloaded", ev.Action)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload")
	}
	assert.Equal(t, 1, svc.Store().Len())

	stop()
	require.NoError(t, <-done)
}

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus()
	a, cancelA := bus.Subscribe()
	b, cancelB := bus.Subscribe()
	assert.Equal(t, 2, bus.Subscribers())

	bus.Publish(Event{Resource: "dataset", Action: "reloaded"})
	evA := <-a
	evB := <-b
	assert.Equal(t, "reloaded", evA.Action)
	assert.False(t, evB.At.IsZero())

	cancelA()
	cancelA()
	assert.Equal(t, 1, bus.Subscribers())
	_, open := <-a
	assert.False(t, open)

	for i := 0; i < 100; i++ {
		bus.Publish(Event{Resource: "dataset"})
	}
	cancelB()
	assert.Zero(t, bus.Subscribers())
}
