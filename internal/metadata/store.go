// Package metadata provides the storage_path -> attribute record store with
// JSON file persistence.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/mitsuke/internal/models"
)

// Store maps storage paths to metadata records. Every path in the vector index
// has a record here; a missing record reads as an empty one, never as an error.
type Store struct {
	mu      sync.RWMutex
	records map[string]models.Metadata
}

// NewStore creates an empty metadata store.
func NewStore() *Store {
	return &Store{records: make(map[string]models.Metadata)}
}

// Set merges fields into the record for path, caller fields overriding
// existing ones.
func (s *Store) Set(path string, fields models.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[path]
	if !ok {
		record = make(models.Metadata, len(fields))
		s.records[path] = record
	}
	for k, v := range fields {
		record[k] = v
	}
}

// Get returns a copy of the record for path; an absent record is an empty map.
func (s *Store) Get(path string) models.Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[path]; ok {
		return record.Clone()
	}
	return models.Metadata{}
}

// Delete removes the record for path. Removing an absent record is a no-op.
func (s *Store) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, path)
}

// Reset drops all records.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]models.Metadata)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FindPath returns the first path whose record matches pred, in unspecified
// order. Used to resolve a product id to one of its reference images.
func (s *Store) FindPath(pred func(path string, record models.Metadata) bool) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for path, record := range s.records {
		if pred(path, record) {
			return path, true
		}
	}
	return "", false
}

// Save writes all records to path as an indented JSON mapping.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metadata dir: %w", err)
	}
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// Load replaces the in-memory records with the mapping at path. A missing file
// leaves the store unchanged and returns no error.
func (s *Store) Load(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read metadata: %w", err)
	}
	var records map[string]models.Metadata
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse metadata: %w", err)
	}
	if records == nil {
		records = make(map[string]models.Metadata)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	return nil
}
