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

package rls

import (
	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/entity"
)

// Shape classifies a principal for row rule selection.
type Shape string

const (
	ShapeMunicipality Shape = "municipality"
	ShapeOrganization Shape = "organization"
	ShapeProvider     Shape = "provider"
	ShapeAcademic     Shape = "academic"
	// ShapeCreator is the fallback when no other shape has a rule. A table
	// entry for it replaces the default "created by me" scope.
	ShapeCreator      Shape = "creator"
)

// Precedence is the fixed order in which shapes are tried. Organization is
// tried before provider; both key on the principal's organization.
var Precedence = []Shape{
	ShapeMunicipality,
	ShapeOrganization,
	ShapeProvider,
	ShapeAcademic,
}

// Matches reports whether p qualifies for shape s.
func (s Shape) Matches(p *authz.Principal) bool {
	if p == nil {
		return false
	}
	switch s {
	case ShapeMunicipality:
		return p.IsMunicipalityScoped()
	case ShapeOrganization, ShapeProvider:
		return p.IsOrganizationScoped()
	case ShapeAcademic:
		return p.IsAcademic()
	case ShapeCreator:
		return true
	}
	return false
}

// ScopeFunc builds the visibility filter for a principal of a given shape.
type ScopeFunc func(p *authz.Principal) entity.Filter

// Table holds at most one scope per (entity type, shape) pair.
type Table map[entity.Type]map[Shape]ScopeFunc

// Record field names referenced by the built-in rules.
const (
	FieldMunicipalityID        = "municipality_id"
	FieldCityID                = "city_id"
	FieldStakeholders          = "stakeholders"
	FieldTeam                  = "team"
	FieldProviderID            = "provider_id"
	FieldPrincipalInvestigator = "principal_investigator.email"
	FieldTeamMembers           = "team_members"
	FieldEmail                 = "email"
	FieldUserID                = "user_id"
)

// DefaultTable returns the canonical rule table.
//
// Organization visibility is own organization only; partner flags on the
// record are not consulted.
func DefaultTable() Table {
	return Table{
		entity.TypeChallenge: {
			ShapeMunicipality: sameMunicipality,
			ShapeOrganization: func(p *authz.Principal) entity.Filter {
				return entity.Or(
					createdBy(p),
					elemMatch(FieldStakeholders, FieldEmail, p.Email),
				)
			},
		},
		entity.TypePilot: {
			ShapeMunicipality: sameMunicipality,
			ShapeProvider: func(p *authz.Principal) entity.Filter {
				return entity.Or(
					elemMatch(FieldTeam, FieldEmail, p.Email),
					createdBy(p),
				)
			},
		},
		entity.TypeSolution: {
			ShapeProvider: func(p *authz.Principal) entity.Filter {
				return entity.Or(
					eq(FieldProviderID, p.OrganizationID),
					createdBy(p),
				)
			},
		},
		entity.TypeRDProject: {
			ShapeAcademic: func(p *authz.Principal) entity.Filter {
				return entity.Or(
					eq(FieldPrincipalInvestigator, p.Email),
					elemMatch(FieldTeamMembers, FieldEmail, p.Email),
					createdBy(p),
				)
			},
		},
		entity.TypeOrganization: {
			ShapeOrganization: func(p *authz.Principal) entity.Filter {
				return eq(entity.FieldID, p.OrganizationID)
			},
		},
		entity.TypeNotification: {
			ShapeCreator: func(p *authz.Principal) entity.Filter {
				return eq(FieldUserID, p.ID)
			},
		},
	}
}

func sameMunicipality(p *authz.Principal) entity.Filter {
	return entity.Or(
		eq(FieldMunicipalityID, p.MunicipalityID),
		eq(FieldCityID, p.CityID),
	)
}

func createdBy(p *authz.Principal) entity.Filter {
	return eq(entity.FieldCreatedBy, p.Email)
}

// eq and elemMatch fold to None on an empty principal attribute so the
// pushed-down filter stays minimal.
func eq(path, value string) entity.Filter {
	if value == "" {
		return entity.None()
	}
	return entity.Eq(path, value)
}

func elemMatch(path, key, value string) entity.Filter {
	if value == "" {
		return entity.None()
	}
	return entity.ElemMatch(path, key, value)
}
