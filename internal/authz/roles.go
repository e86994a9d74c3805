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

import "github.com/opentrusty/civicguard/internal/entity"

// -----------------------------------------------------------------------------
// Role Name Constants
// Coarse-grained roles stored in user_roles.
// -----------------------------------------------------------------------------

const (
	// RoleAdmin is equivalent to holding every permission and bypasses all
	// row and field rules.
	RoleAdmin = "admin"

	// RoleMunicipalityAdmin manages a municipality's challenges and pilots.
	RoleMunicipalityAdmin = "municipality_admin"

	// RoleMunicipalityStaff works on a municipality's challenges and pilots.
	RoleMunicipalityStaff = "municipality_staff"

	// RoleOrganizationUser belongs to a partner organization.
	RoleOrganizationUser = "organization_user"

	// RoleProvider belongs to a solution provider.
	RoleProvider = "provider"

	// RoleAcademic is a researcher attached to an institution.
	RoleAcademic = "academic"

	// RoleViewer is read-only access to dashboards.
	RoleViewer = "viewer"
)

// RequestableRoles are the roles a principal may ask for through a role request.
var RequestableRoles = []string{
	RoleMunicipalityAdmin,
	RoleMunicipalityStaff,
	RoleOrganizationUser,
	RoleProvider,
	RoleAcademic,
	RoleViewer,
}

// -----------------------------------------------------------------------------
// Permission conventions
// Permissions are opaque tokens, by convention "<entity>_<action>".
// -----------------------------------------------------------------------------

// PermissionWildcard grants every permission.
const PermissionWildcard = "*"

// Common actions.
const (
	ActionView    = "view"
	ActionViewAll = "view_all"
	ActionCreate  = "create"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionApprove = "approve"
)

// Permission builds the "<entity>_<action>" token for t.
func Permission(t entity.Type, action string) string {
	return t.PermissionPrefix() + "_" + action
}

// ViewAll returns the permission that bypasses row rules for t.
func ViewAll(t entity.Type) string {
	return Permission(t, ActionViewAll)
}
