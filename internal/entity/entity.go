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

// Package entity defines the generic entity store contract consumed by the
// access-control core. Records are schemaless JSON documents; the store is an
// external collaborator and only its read/write/query surface is modelled here.
package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Domain errors
var (
	ErrNotFound    = errors.New("entity not found")
	ErrInvalidType = errors.New("invalid entity type")
)

// Type names an entity collection.
type Type string

const (
	TypeChallenge    Type = "Challenge"
	TypePilot        Type = "Pilot"
	TypeSolution     Type = "Solution"
	TypeRDProject    Type = "RDProject"
	TypeOrganization Type = "Organization"
	TypeRoleRequest  Type = "RoleRequest"
	TypeNotification Type = "Notification"
)

var permissionPrefixes = map[Type]string{
	TypeChallenge:    "challenge",
	TypePilot:        "pilot",
	TypeSolution:     "solution",
	TypeRDProject:    "rd_project",
	TypeOrganization: "organization",
	TypeRoleRequest:  "role_request",
	TypeNotification: "notification",
}

// PermissionPrefix returns the token prefix used in "<entity>_<action>" permissions.
// Unknown types fall back to the snake_cased type name.
func (t Type) PermissionPrefix() string {
	if p, ok := permissionPrefixes[t]; ok {
		return p
	}
	var b strings.Builder
	for i, r := range string(t) {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseType validates a collection name coming from the outside world.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidType
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
		}
	}
	return Type(s), nil
}

// Well-known record keys.
const (
	FieldID        = "id"
	FieldCreatedBy = "created_by"
)

// Record is a single entity document.
type Record map[string]any

// ID returns the record identifier.
func (r Record) ID() string {
	return r.String(FieldID)
}

// CreatedBy returns the creator email.
func (r Record) CreatedBy() string {
	return r.String(FieldCreatedBy)
}

// Lookup resolves a dotted path ("principal_investigator.email").
func (r Record) Lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String resolves path to its string form; missing or nil values are "".
func (r Record) String(path string) string {
	v, ok := r.Lookup(path)
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []Record:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	default:
		return nil, false
	}
}

// stringify renders scalars the way jsonb text extraction (#>>) does, so
// in-memory matching agrees with the SQL predicate.
func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case int32:
		return strconv.FormatInt(int64(s), 10)
	case bool:
		return strconv.FormatBool(s)
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(v)
	}
}

// Store is the external entity store. Implementations must treat the filter
// as authoritative: only records matching it may be returned by List.
type Store interface {
	Get(ctx context.Context, t Type, id string) (Record, error)
	List(ctx context.Context, t Type, filter Filter) ([]Record, error)
	Create(ctx context.Context, t Type, payload Record) (Record, error)
	Update(ctx context.Context, t Type, id string, patch Record) (Record, error)
	Delete(ctx context.Context, t Type, id string) error
}
