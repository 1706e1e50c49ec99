package service

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-poi/internal/feature"
	"github.com/joeblew999/plat-poi/internal/filter"
	"github.com/joeblew999/plat-poi/internal/metadata"
)

// DatasetService owns the loaded documents. The detail records live in the
// shared feature store; metadata and rendered features are kept here.
type DatasetService struct {
	cfg   Config
	store *feature.Store
	bus   *EventBus
	log   zerolog.Logger

	mu       sync.RWMutex
	meta     metadata.Document
	rendered []*geojson.Feature
	loadedAt time.Time
	onLoad   []func(metadata.Document)
}

// NewDatasetService creates a dataset service. Nothing is read until Load.
func NewDatasetService(cfg Config, store *feature.Store, bus *EventBus, log zerolog.Logger) *DatasetService {
	if bus == nil {
		bus = NewEventBus()
	}
	return &DatasetService{
		cfg:   cfg.withDefaults(),
		store: store,
		bus:   bus,
		log:   log,
	}
}

// OnLoad registers fn to run after every successful load.
func (s *DatasetService) OnLoad(fn func(metadata.Document)) {
	s.mu.Lock()
	s.onLoad = append(s.onLoad, fn)
	s.mu.Unlock()
}

// Load reads all documents. Missing files load as empty; a document that
// fails to parse aborts the load and leaves the previous contents in place.
func (s *DatasetService) Load() error {
	err := s.load()
	if err != nil {
		s.log.Error().Err(err).Msg("dataset load failed")
		s.bus.Publish(Event{Resource: "dataset", Action: "reload-failed", Err: err.Error()})
		return err
	}
	s.bus.Publish(Event{Resource: "dataset", Action: "reloaded"})
	return nil
}

func (s *DatasetService) load() error {
	details, err := s.readDetails()
	if err != nil {
		return err
	}
	meta, err := s.readMetadata()
	if err != nil {
		return err
	}
	rendered, err := s.readGeoJSON()
	if err != nil {
		return err
	}
	NormalizeFeatures(rendered, meta.Definitions())

	s.store.Load(details)

	s.mu.Lock()
	s.meta = meta
	s.rendered = rendered
	s.loadedAt = time.Now()
	hooks := slices.Clone(s.onLoad)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(meta)
	}

	s.log.Info().
		Int("details", len(details)).
		Int("rendered", len(rendered)).
		Int("categories", len(meta.Categories)).
		Msg("dataset loaded")
	return nil
}

func (s *DatasetService) readDetails() (map[string]feature.Attributes, error) {
	path := s.path(s.cfg.DetailsFile)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Str("path", path).Msg("detail dataset missing, clicks will be dropped")
		return map[string]feature.Attributes{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := feature.DecodeDataset(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

func (s *DatasetService) readMetadata() (metadata.Document, error) {
	path := s.path(s.cfg.MetadataFile)
	doc, err := metadata.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Str("path", path).Msg("metadata missing, filtering disabled")
		return metadata.Document{}, nil
	}
	if err != nil {
		return metadata.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func (s *DatasetService) readGeoJSON() ([]*geojson.Feature, error) {
	path := s.path(s.cfg.GeoJSONFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Str("path", path).Msg("rendered dataset missing")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fc.Features, nil
}

func (s *DatasetService) path(name string) string {
	return filepath.Join(s.cfg.DataDir, name)
}

// Metadata returns the loaded metadata document.
func (s *DatasetService) Metadata() metadata.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// Definitions returns the filter definitions from the loaded metadata.
func (s *DatasetService) Definitions() []filter.Definition {
	return s.Metadata().Definitions()
}

// Store returns the shared feature store.
func (s *DatasetService) Store() *feature.Store { return s.store }

// Bus returns the event bus dataset changes are published on.
func (s *DatasetService) Bus() *EventBus { return s.bus }

// Config returns the effective configuration.
func (s *DatasetService) Config() Config { return s.cfg }

// Info summarizes the loaded documents.
func (s *DatasetService) Info() DatasetInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DatasetInfo{
		Details:    s.store.Len(),
		Rendered:   len(s.rendered),
		Categories: len(s.meta.Categories),
		Title:      s.meta.Title,
		LoadedAt:   s.loadedAt,
	}
}

// Features returns the rendered features matching p, paginated. The total
// counts all matches.
func (s *DatasetService) Features(p filter.Predicate, offset, limit int) (int, []FeatureSummary) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		total int
		page  = []FeatureSummary{}
	)
	for _, f := range s.rendered {
		if !p.Match(properties(f.Properties)) {
			continue
		}
		if total >= offset && (limit <= 0 || len(page) < limit) {
			page = append(page, summarize(f))
		}
		total++
	}
	return total, page
}

// properties adapts GeoJSON properties to filter.Subject.
type properties geojson.Properties

func (p properties) Terms(attribute string) []string {
	v, ok := p[attribute]
	if !ok {
		return nil
	}
	return feature.FromAny(v).Terms()
}

func summarize(f *geojson.Feature) FeatureSummary {
	fs := FeatureSummary{
		ID:         featureID(f),
		Properties: map[string]any(f.Properties),
	}
	if pt, ok := f.Geometry.(orb.Point); ok {
		fs.Lon, fs.Lat = pt.Lon(), pt.Lat()
	}
	return fs
}

func featureID(f *geojson.Feature) string {
	if id, ok := f.Properties["id"]; ok {
		return fmt.Sprint(id)
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return ""
}
