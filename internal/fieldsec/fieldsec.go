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

// Package fieldsec redacts sensitive attributes inside records the principal
// is otherwise allowed to see.
package fieldsec

import (
	"sort"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/entity"
)

// AdminOnly in a token list marks a field visible to admins only. It never
// grants on its own.
const AdminOnly = "admin"

// MaskToken is rendered in place of a hidden value.
const MaskToken = "••••••"

// Rules maps entity type to field name to the tokens that grant visibility.
// Fields without an entry are unrestricted.
type Rules map[entity.Type]map[string][]string

// DefaultRules returns the field table for the built-in entity types.
func DefaultRules() Rules {
	return Rules{
		entity.TypeChallenge: {
			"budget":         {"challenge_view_budget", "challenge_edit"},
			"internal_notes": {AdminOnly},
		},
		entity.TypePilot: {
			"budget":           {"pilot_view_budget", "pilot_edit"},
			"evaluation_notes": {"pilot_evaluate", AdminOnly},
		},
		entity.TypeSolution: {
			"pricing":       {"solution_view_pricing"},
			"contact_phone": {"solution_edit"},
		},
		entity.TypeRDProject: {
			"funding_amount": {"rd_project_view_funding", "rd_project_edit"},
			"ethics_review":  {AdminOnly},
		},
		entity.TypeOrganization: {
			"tax_id":        {AdminOnly},
			"contact_phone": {"organization_edit"},
		},
		entity.TypeRoleRequest: {
			"review_notes": {"role_request_approve"},
		},
	}
}

// Enforcer evaluates field rules for a principal.
type Enforcer struct {
	rules Rules
}

// New creates an enforcer over rules.
func New(rules Rules) *Enforcer {
	if rules == nil {
		rules = Rules{}
	}
	return &Enforcer{rules: rules}
}

// CanViewField reports whether p may see field on records of type t.
func (e *Enforcer) CanViewField(p *authz.Principal, t entity.Type, field string) bool {
	tokens, restricted := e.rules[t][field]
	if !restricted {
		return true
	}
	if p.IsAdmin() {
		return true
	}
	for _, tok := range tokens {
		if tok == AdminOnly {
			continue
		}
		if p.HasPermission(tok) {
			return true
		}
	}
	return false
}

// FilterSensitiveFields returns a shallow copy of r without the fields p may
// not see. Filtering twice yields the same record.
func (e *Enforcer) FilterSensitiveFields(p *authz.Principal, t entity.Type, r entity.Record) entity.Record {
	if r == nil {
		return nil
	}
	out := make(entity.Record, len(r))
	for k, v := range r {
		if e.CanViewField(p, t, k) {
			out[k] = v
		}
	}
	return out
}

// Mask returns value when p may see field, MaskToken otherwise.
func (e *Enforcer) Mask(p *authz.Principal, t entity.Type, field string, value any) any {
	if e.CanViewField(p, t, field) {
		return value
	}
	return MaskToken
}

// RestrictedFields lists the fields of t that carry a rule, sorted.
func (e *Enforcer) RestrictedFields(t entity.Type) []string {
	out := make([]string, 0, len(e.rules[t]))
	for f := range e.rules[t] {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// VisibleFields reports visibility of each restricted field of t for p.
func (e *Enforcer) VisibleFields(p *authz.Principal, t entity.Type) map[string]bool {
	out := make(map[string]bool, len(e.rules[t]))
	for f := range e.rules[t] {
		out[f] = e.CanViewField(p, t, f)
	}
	return out
}
