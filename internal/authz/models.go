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

package authz

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/opentrusty/civicguard/internal/entity"
)

// ErrProfileNotFound is returned by ProfileRepository for unknown users
var ErrProfileNotFound = errors.New("profile not found")

// Set is an unordered set of names. It encodes to JSON as a sorted array.
type Set map[string]struct{}

// NewSet builds a set from names, skipping blanks.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

// Has reports membership.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewSet(names...)
	return nil
}

// Profile is the principal's profile record.
type Profile struct {
	UserID           string
	Email            string
	FullName         string
	MunicipalityID   string
	CityID           string
	OrganizationID   string
	InstitutionID    string
	AreasOfExpertise []string
}

// FunctionalRole is a backend-computed role grouping.
type FunctionalRole struct {
	RoleName string `json:"role_name"`
}

// Principal is the authenticated actor whose access is being evaluated.
// It is built once per session by Service.Load and treated as read-only.
// A nil *Principal is the unauthenticated actor: every predicate denies.
type Principal struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	MunicipalityID   string   `json:"municipality_id,omitempty"`
	CityID           string   `json:"city_id,omitempty"`
	OrganizationID   string   `json:"organization_id,omitempty"`
	InstitutionID    string   `json:"institution_id,omitempty"`
	AreasOfExpertise []string `json:"areas_of_expertise,omitempty"`
	Roles            Set      `json:"roles"`
	Permissions      Set      `json:"permissions"`
	FunctionalRoles  Set      `json:"functional_roles"`

	// Degraded lists the lookup dimensions that failed and were resolved to
	// an empty set. Degraded principals are never cached.
	Degraded []string `json:"degraded,omitempty"`
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Roles.Has(RoleAdmin)
}

// HasPermission checks a single permission token.
// Admins and holders of the wildcard hold every permission.
func (p *Principal) HasPermission(token string) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return p.Permissions.Has(PermissionWildcard) || p.Permissions.Has(token)
}

// HasAnyPermission reports whether at least one token is held.
func (p *Principal) HasAnyPermission(tokens ...string) bool {
	for _, t := range tokens {
		if p.HasPermission(t) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every token is held. An empty list is
// vacuously true for an authenticated principal.
func (p *Principal) HasAllPermissions(tokens ...string) bool {
	if p == nil {
		return false
	}
	for _, t := range tokens {
		if !p.HasPermission(t) {
			return false
		}
	}
	return true
}

// HasRole checks coarse role membership.
func (p *Principal) HasRole(role string) bool {
	return p != nil && p.Roles.Has(role)
}

// HasFunctionalRole checks functional role membership.
func (p *Principal) HasFunctionalRole(role string) bool {
	return p != nil && p.FunctionalRoles.Has(role)
}

// CanAccessEntity is sugar for HasPermission("<entity>_<action>").
func (p *Principal) CanAccessEntity(t entity.Type, action string) bool {
	return p.HasPermission(Permission(t, action))
}

// IsMunicipalityScoped reports whether the principal carries a municipality
// or a city.
func (p *Principal) IsMunicipalityScoped() bool {
	return p != nil && (p.MunicipalityID != "" || p.CityID != "")
}

// IsOrganizationScoped reports whether the principal belongs to an organization.
func (p *Principal) IsOrganizationScoped() bool {
	return p != nil && p.OrganizationID != ""
}

// IsAcademic reports whether the principal has an institution or expertise areas.
func (p *Principal) IsAcademic() bool {
	return p != nil && (p.InstitutionID != "" || len(p.AreasOfExpertise) > 0)
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal, or nil.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
