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
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pilot() Record {
	return Record{
		"id":              "p1",
		"municipality_id": "M1",
		"created_by":      "owner@x.com",
		"team": []any{
			map[string]any{"email": "a@x.com", "role": "lead"},
			map[string]any{"email": "b@x.com"},
		},
		"principal_investigator": map[string]any{"email": "pi@uni.edu"},
	}
}

// TestPurpose: Validates the reference semantics of filter nodes used for RLS push-down.
// Scope: Unit Test
// Security: Row filtering correctness
// Expected: Each node kind accepts and rejects the documented records.
// Test Case ID: ENT-01
func TestFilter_Match(t *testing.T) {
	r := pilot()
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"zero value matches", Filter{}, true},
		{"all", All(), true},
		{"none", None(), false},
		{"eq hit", Eq("municipality_id", "M1"), true},
		{"eq miss", Eq("municipality_id", "M2"), false},
		{"eq empty value never matches", Eq("missing", ""), false},
		{"eq nested path", Eq("principal_investigator.email", "pi@uni.edu"), true},
		{"elem match hit", ElemMatch("team", "email", "b@x.com"), true},
		{"elem match miss", ElemMatch("team", "email", "c@x.com"), false},
		{"elem match on non-array", ElemMatch("municipality_id", "email", "M1"), false},
		{"and", And(Eq("municipality_id", "M1"), Eq("created_by", "owner@x.com")), true},
		{"and short", And(Eq("municipality_id", "M1"), Eq("created_by", "x")), false},
		{"or", Or(Eq("municipality_id", "M9"), ElemMatch("team", "email", "a@x.com")), true},
		{"or none", Or(Eq("municipality_id", "M9"), Eq("created_by", "x")), false},
		{"unknown op", Filter{Op: "regex"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(r))
		})
	}
}

func TestFilter_Folding(t *testing.T) {
	assert.True(t, And().IsAll())
	assert.True(t, Or().IsNone())
	assert.True(t, And(All(), None()).IsNone())
	assert.True(t, Or(None(), All()).IsAll())

	eq := Eq("a", "1")
	assert.Equal(t, eq, And(All(), eq))
	assert.Equal(t, eq, Or(None(), eq))
	assert.Equal(t, `(a = "1" OR b = "2")`, Or(eq, Eq("b", "2")).String())
}

func TestType_PermissionPrefix(t *testing.T) {
	assert.Equal(t, "challenge", TypeChallenge.PermissionPrefix())
	assert.Equal(t, "rd_project", TypeRDProject.PermissionPrefix())
	assert.Equal(t, "event_log", Type("EventLog").PermissionPrefix())

	_, err := ParseType("Pilot; DROP")
	assert.ErrorIs(t, err, ErrInvalidType)
	typ, err := ParseType("Pilot")
	require.NoError(t, err)
	assert.Equal(t, TypePilot, typ)
}

func TestMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.Create(ctx, TypePilot, pilot())
	require.NoError(t, err)
	assert.Equal(t, "p1", created.ID())

	other, err := s.Create(ctx, TypePilot, Record{"municipality_id": "M2"})
	require.NoError(t, err)
	assert.NotEmpty(t, other.ID())

	list, err := s.List(ctx, TypePilot, Eq("municipality_id", "M1"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID())

	updated, err := s.Update(ctx, TypePilot, "p1", Record{"municipality_id": "M3", "id": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, "M3", updated.String("municipality_id"))
	assert.Equal(t, "p1", updated.ID())

	// Returned records are copies.
	updated["municipality_id"] = "tampered"
	got, err := s.Get(ctx, TypePilot, "p1")
	require.NoError(t, err)
	assert.Equal(t, "M3", got.String("municipality_id"))

	require.NoError(t, s.Delete(ctx, TypePilot, "p1"))
	_, err = s.Get(ctx, TypePilot, "p1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, TypePilot, "p1"), ErrNotFound)
}

// TestPurpose: Validates scalar rendering used for filter comparison on JSON-decoded records.
// Scope: Unit Test
// Security: Client-side row checks must agree with jsonb text extraction
// Expected: Numbers render without exponent, booleans as true/false, json.Number verbatim.
// Test Case ID: ENT-02
func TestRecord_StringJSONScalars(t *testing.T) {
	var r Record
	require.NoError(t, json.Unmarshal([]byte(`{"municipality_id":1234567,"ratio":0.25,"active":true,"big":12345678901234}`), &r))

	assert.Equal(t, "1234567", r.String("municipality_id"))
	assert.Equal(t, "0.25", r.String("ratio"))
	assert.Equal(t, "true", r.String("active"))
	assert.Equal(t, "12345678901234", r.String("big"))
	assert.True(t, Eq("municipality_id", "1234567").Match(r))

	dec := json.NewDecoder(strings.NewReader(`{"municipality_id":1234567.0}`))
	dec.UseNumber()
	var n Record
	require.NoError(t, dec.Decode(&n))
	assert.Equal(t, "1234567.0", n.String("municipality_id"))

	typed := Record{"n": 42, "n64": int64(7), "team": []any{map[string]any{"org": 99.0}}}
	assert.Equal(t, "42", typed.String("n"))
	assert.Equal(t, "7", typed.String("n64"))
	assert.True(t, ElemMatch("team", "org", "99").Match(typed))
}
