// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package entity

import (
	"context"
	"sort"
	"sync"

	"github.com/opentrusty/civicguard/internal/id"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Type]map[string]Record
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[Type]map[string]Record)}
}

// Get retrieves a copy of a record.
func (s *MemoryStore) Get(ctx context.Context, t Type, recordID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[t][recordID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// List returns every record of t matching filter, ordered by id.
func (s *MemoryStore) List(ctx context.Context, t Type, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records[t]))
	for _, r := range s.records[t] {
		if filter.Match(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// Create stores payload, assigning an id when absent.
func (s *MemoryStore) Create(ctx context.Context, t Type, payload Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := payload.Clone()
	if r.ID() == "" {
		r[FieldID] = id.NewUUIDv7()
	}
	if s.records[t] == nil {
		s.records[t] = make(map[string]Record)
	}
	s.records[t][r.ID()] = r
	return r.Clone(), nil
}

// Update merges patch into an existing record.
func (s *MemoryStore) Update(ctx context.Context, t Type, recordID string, patch Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[t][recordID]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range patch {
		if k == FieldID {
			continue
		}
		r[k] = v
	}
	return r.Clone(), nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(ctx context.Context, t Type, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[t][recordID]; !ok {
		return ErrNotFound
	}
	delete(s.records[t], recordID)
	return nil
}
