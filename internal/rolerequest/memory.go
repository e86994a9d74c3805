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

package rolerequest

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu       sync.Mutex
	requests map[string]*RoleRequest
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{requests: make(map[string]*RoleRequest)}
}

func clone(r *RoleRequest) *RoleRequest {
	c := *r
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

func (m *MemoryRepository) Create(_ context.Context, req *RoleRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.ID] = clone(req)
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*RoleRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(r), nil
}

func (m *MemoryRepository) CountByEmailSince(_ context.Context, email string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.UserEmail == email && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) ListByStatus(_ context.Context, status Status) ([]*RoleRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*RoleRequest, 0)
	for _, r := range m.requests {
		if r.Status == status {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepository) Resolve(_ context.Context, id string, res Resolution) (*RoleRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != StatusPending {
		return nil, ErrInvalidTransition
	}
	at := res.ResolvedAt
	r.Status = res.Status
	r.ReviewNotes = res.ReviewNotes
	r.ApproverEmail = res.ApproverEmail
	r.ResolvedAt = &at
	return clone(r), nil
}

func (m *MemoryRepository) Reopen(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusApproved {
		return ErrInvalidTransition
	}
	r.Status = StatusPending
	r.ReviewNotes = ""
	r.ApproverEmail = ""
	r.ResolvedAt = nil
	return nil
}
