// Package settings is the global_settings.json store named in §6's
// on-disk layout, holding the handful of instance-independent knobs (the
// CLI/desktop flags only affect logging, so there is little here beyond a
// free-form key/value bag). Grounded on the same whole-file-atomic-write
// pattern as internal/auth.Store.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	coreerrors "github.com/lodestone-core/lodestone/infrastructure/errors"
)

// Store is the in-memory global settings table backed by
// stores/global_settings.json.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]interface{}
}

// NewStore loads global_settings.json at path if it exists, or starts empty.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]interface{})}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read global settings store: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parse global settings store: %w", err)
	}
	return s, nil
}

// All returns a copy of the full settings map.
func (s *Store) All() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key and persists the whole table. On write
// failure the in-memory change is rolled back and Internal is returned,
// per §7's file-backed-state rollback policy.
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.values[key]
	s.values[key] = value

	if err := s.flushLocked(); err != nil {
		if existed {
			s.values[key] = previous
		} else {
			delete(s.values, key)
		}
		return coreerrors.InternalError("failed to persist global settings store", err)
	}
	return nil
}

func (s *Store) flushLocked() error {
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal global settings store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".global-settings-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp global settings store: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp global settings store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp global settings store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("commit global settings store: %w", err)
	}
	return nil
}
