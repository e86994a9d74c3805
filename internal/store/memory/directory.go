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

// Package memory holds in-process stand-ins for the Postgres directory
// tables, used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/rolerequest"
)

// Directory keeps profiles, role assignments, role permissions and
// functional roles. It implements authz.ProfileRepository,
// authz.RoleRepository, authz.PermissionFunctions and
// rolerequest.RoleGranter.
type Directory struct {
	mu              sync.RWMutex
	profiles        map[string]authz.Profile
	roles           map[string]map[string]struct{}
	rolePermissions map[string][]string
	functional      map[string][]string
}

// NewDirectory creates a directory with the given role permission table.
func NewDirectory(rolePermissions map[string][]string) *Directory {
	if rolePermissions == nil {
		rolePermissions = map[string][]string{}
	}
	return &Directory{
		profiles:        make(map[string]authz.Profile),
		roles:           make(map[string]map[string]struct{}),
		rolePermissions: rolePermissions,
		functional:      make(map[string][]string),
	}
}

// PutProfile inserts or replaces a profile.
func (d *Directory) PutProfile(p authz.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.UserID] = p
}

// AssignFunctionalRole adds a functional role to a user.
func (d *Directory) AssignFunctionalRole(userID, role string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.functional[userID] = append(d.functional[userID], role)
}

func (d *Directory) GetProfile(_ context.Context, userID string) (*authz.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[userID]
	if !ok {
		return nil, authz.ErrProfileNotFound
	}
	return &p, nil
}

func (d *Directory) ListUserRoles(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.roles[userID]))
	for r := range d.roles[userID] {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (d *Directory) GetUserPermissions(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := map[string]struct{}{}
	var out []string
	for r := range d.roles[userID] {
		for _, p := range d.rolePermissions[r] {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (d *Directory) GetUserFunctionalRoles(_ context.Context, userID string) ([]authz.FunctionalRole, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]authz.FunctionalRole, 0, len(d.functional[userID]))
	for _, r := range d.functional[userID] {
		out = append(out, authz.FunctionalRole{RoleName: r})
	}
	return out, nil
}

func (d *Directory) GrantRole(_ context.Context, userID string, a rolerequest.Assignment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.roles[userID] == nil {
		d.roles[userID] = make(map[string]struct{})
	}
	d.roles[userID][a.Role] = struct{}{}

	p, ok := d.profiles[userID]
	if !ok {
		return nil
	}
	if a.MunicipalityID != "" {
		p.MunicipalityID = a.MunicipalityID
	}
	if a.OrganizationID != "" {
		p.OrganizationID = a.OrganizationID
	}
	if a.InstitutionID != "" {
		p.InstitutionID = a.InstitutionID
	}
	d.profiles[userID] = p
	return nil
}

// DefaultRolePermissions is the baseline permission table for local runs.
func DefaultRolePermissions() map[string][]string {
	return map[string][]string{
		authz.RoleMunicipalityAdmin: {
			"challenge_view", "challenge_create", "challenge_edit", "challenge_view_budget",
			"pilot_view", "pilot_create", "pilot_edit", "pilot_view_budget", "pilot_evaluate",
			"solution_view", "organization_view",
		},
		authz.RoleMunicipalityStaff: {"challenge_view", "challenge_create", "pilot_view", "solution_view"},
		authz.RoleOrganizationUser:  {"challenge_view", "organization_view", "organization_edit"},
		authz.RoleProvider:          {"pilot_view", "solution_view", "solution_create", "solution_edit", "solution_view_pricing"},
		authz.RoleAcademic:          {"rd_project_view", "rd_project_create", "rd_project_edit"},
		authz.RoleViewer:            {"challenge_view", "solution_view"},
	}
}
