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

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/rolerequest"
	"github.com/opentrusty/civicguard/internal/session"
)

// TestPurpose: Validates that a granted role flows into the loaded principal.
// Scope: Unit Test
// Expected: After GrantRole the principal holds the role, its permissions and the assigned organization.
// Test Case ID: MEM-01
func TestDirectory_GrantFlowsIntoPrincipal(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(DefaultRolePermissions())
	dir.PutProfile(authz.Profile{UserID: "u-1", Email: "u@x.com"})
	dir.AssignFunctionalRole("u-1", "evaluator")

	svc := authz.NewService(dir, dir, dir, nil, nil)
	before, err := svc.Load(ctx, &session.Session{UserID: "u-1"})
	require.NoError(t, err)
	assert.False(t, before.HasRole(authz.RoleProvider))
	assert.True(t, before.HasFunctionalRole("evaluator"))

	require.NoError(t, dir.GrantRole(ctx, "u-1", rolerequest.Assignment{Role: authz.RoleProvider, OrganizationID: "org-3"}))

	after, err := svc.Load(ctx, &session.Session{UserID: "u-1"})
	require.NoError(t, err)
	assert.True(t, after.HasRole(authz.RoleProvider))
	assert.True(t, after.HasPermission("solution_view_pricing"))
	assert.Equal(t, "org-3", after.OrganizationID)
	assert.Equal(t, "u@x.com", after.Email)
}
