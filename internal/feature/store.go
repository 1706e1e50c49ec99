package feature

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// ErrNotFound is returned when a feature id is absent from the store. Ids
// can legitimately reference features the detail dataset does not know yet.
var ErrNotFound = errors.New("feature not found")

// Store holds detail records keyed by feature id. It is filled in bulk and
// shared read-only between sessions.
type Store struct {
	mu      sync.RWMutex
	records map[string]Attributes
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]Attributes)}
}

// Load replaces the store contents with records.
func (s *Store) Load(records map[string]Attributes) {
	next := make(map[string]Attributes, len(records))
	for id, attrs := range records {
		next[id] = attrs
	}

	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
}

// LoadJSON decodes a detail dataset (a JSON object of id to attribute
// object) and replaces the store contents. Returns the number of records.
func (s *Store) LoadJSON(r io.Reader) (int, error) {
	records, err := DecodeDataset(r)
	if err != nil {
		return 0, err
	}
	s.Load(records)
	return len(records), nil
}

// DecodeDataset decodes a detail dataset keeping each record's attribute
// order.
func DecodeDataset(r io.Reader) (map[string]Attributes, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading detail dataset: %w", err)
	}
	records, err := decodeDataset(data)
	if err != nil {
		return nil, fmt.Errorf("parsing detail dataset: %w", err)
	}
	return records, nil
}

func decodeDataset(data []byte) (map[string]Attributes, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	records := make(map[string]Attributes)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		id, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected feature id, got %v", tok)
		}
		var attrs Attributes
		if err := dec.Decode(&attrs); err != nil {
			return nil, fmt.Errorf("feature %q: %w", id, err)
		}
		records[id] = attrs
	}
	return records, nil
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attrs, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return Record{ID: id, Attributes: attrs}, nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// IDs returns all feature ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
