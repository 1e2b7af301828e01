// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides key-value persistence for emberchat state.
//
// Each key maps to one JSON file under the state directory. A save
// overwrites the whole value; there is no transactionality and no schema
// versioning. Callers own the granularity of what they store per key.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/morganforge/emberchat/internal/util"
)

// Store persists JSON-serialized values, one file per key.
type Store struct {
	mu sync.Mutex

	// BaseDir is the directory holding the JSON files.
	BaseDir string
}

// New creates a store rooted at baseDir, creating it if needed.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Store{BaseDir: baseDir}, nil
}

// Load reads the value for key into v. A missing key leaves v untouched
// and returns false with a nil error.
func (s *Store) Load(key string, v interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// Save overwrites the value for key. The write is atomic so a crash never
// leaves a truncated collection on disk.
func (s *Store) Save(key string, v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(s.filePath(key), data, 0644)
}

// Delete removes the value for key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.filePath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// filePath returns the backing file for a key.
func (s *Store) filePath(key string) string {
	return filepath.Join(s.BaseDir, key+".json")
}
