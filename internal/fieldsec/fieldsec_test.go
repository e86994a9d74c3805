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

package fieldsec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/entity"
)

func principal(roles []string, perms ...string) *authz.Principal {
	return &authz.Principal{
		ID:          "u-1",
		Email:       "u1@example.org",
		Roles:       authz.NewSet(roles...),
		Permissions: authz.NewSet(perms...),
	}
}

func challenge() entity.Record {
	return entity.Record{
		"id":              "c-1",
		"title":           "Flood sensors",
		"municipality_id": "m-1",
		"budget":          120000,
		"internal_notes":  "shortlist pending",
	}
}

// TestPurpose: Validates field visibility for admins, token holders and the admin-only marker.
// Scope: Unit Test
// Security: Field-level redaction
// Expected: Admin sees all; listed token grants; the literal "admin" token never grants; unlisted fields are open.
// Test Case ID: FLD-01
func TestEnforcer_CanViewField(t *testing.T) {
	e := New(DefaultRules())

	admin := principal([]string{authz.RoleAdmin})
	budgetViewer := principal(nil, "challenge_view_budget")
	holdsAdminToken := principal(nil, "admin")
	wildcard := principal(nil, authz.PermissionWildcard)

	tests := []struct {
		name  string
		p     *authz.Principal
		field string
		want  bool
	}{
		{"admin restricted", admin, "internal_notes", true},
		{"token grants", budgetViewer, "budget", true},
		{"token does not cover other field", budgetViewer, "internal_notes", false},
		{"admin token string is not a grant", holdsAdminToken, "internal_notes", false},
		{"wildcard covers ordinary tokens", wildcard, "budget", true},
		{"wildcard is not admin", wildcard, "internal_notes", false},
		{"unrestricted field", budgetViewer, "title", true},
		{"unrestricted field nil principal", nil, "title", true},
		{"restricted field nil principal", nil, "budget", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.CanViewField(tt.p, entity.TypeChallenge, tt.field))
		})
	}
}

// TestPurpose: Validates that filtering removes only restricted fields and is idempotent.
// Scope: Unit Test
// Security: Field-level redaction
// Expected: Restricted fields dropped once; second pass is a no-op; unrestricted fields never removed; input untouched.
// Test Case ID: FLD-02
func TestEnforcer_FilterSensitiveFields(t *testing.T) {
	e := New(DefaultRules())
	p := principal(nil, "challenge_view")
	r := challenge()

	once := e.FilterSensitiveFields(p, entity.TypeChallenge, r)
	twice := e.FilterSensitiveFields(p, entity.TypeChallenge, once)

	assert.Equal(t, once, twice)
	assert.NotContains(t, once, "budget")
	assert.NotContains(t, once, "internal_notes")
	for _, k := range []string{"id", "title", "municipality_id"} {
		assert.Contains(t, once, k)
	}
	assert.Contains(t, r, "budget", "input record must not be modified")
}

// TestPurpose: Validates that types without a rule table pass records through unchanged.
// Scope: Unit Test
// Expected: Every field kept.
// Test Case ID: FLD-03
func TestEnforcer_NoRulesForType(t *testing.T) {
	e := New(DefaultRules())
	r := entity.Record{"id": "x", "secret_like": "value"}
	assert.Equal(t, r, e.FilterSensitiveFields(nil, entity.Type("Announcement"), r))
}

// TestPurpose: Validates the masking helper and field listing.
// Scope: Unit Test
// Expected: Hidden values render as the mask token; visible values pass through.
// Test Case ID: FLD-04
func TestEnforcer_MaskAndVisibleFields(t *testing.T) {
	e := New(DefaultRules())
	p := principal(nil, "pilot_view_budget")

	assert.Equal(t, 5000, e.Mask(p, entity.TypePilot, "budget", 5000))
	assert.Equal(t, MaskToken, e.Mask(p, entity.TypePilot, "evaluation_notes", "ok"))
	assert.Equal(t, "Pilot A", e.Mask(p, entity.TypePilot, "name", "Pilot A"))

	assert.Equal(t, []string{"budget", "evaluation_notes"}, e.RestrictedFields(entity.TypePilot))
	assert.Equal(t, map[string]bool{"budget": true, "evaluation_notes": false}, e.VisibleFields(p, entity.TypePilot))
}
