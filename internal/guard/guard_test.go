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

package guard

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/session"
)

func withPerms(perms ...string) *authz.Principal {
	return &authz.Principal{
		ID:          "u-1",
		Roles:       authz.NewSet(),
		Permissions: authz.NewSet(perms...),
	}
}

// TestPurpose: Validates conjunction and disjunction of action permissions.
// Scope: Unit Test
// Security: UI affordance gating
// Expected: requireAll needs both tokens; otherwise one suffices.
// Test Case ID: GRD-01
func TestAction_RequireAll(t *testing.T) {
	all := Action{Permissions: []string{"a", "b"}, RequireAll: true}
	either := Action{Permissions: []string{"a", "b"}}

	tests := []struct {
		name    string
		p       *authz.Principal
		wantAll bool
		wantAny bool
	}{
		{"both", withPerms("a", "b"), true, true},
		{"only a", withPerms("a"), false, true},
		{"only b", withPerms("b"), false, true},
		{"neither", withPerms("c"), false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAll, all.Allowed(tt.p))
			assert.Equal(t, tt.wantAny, either.Allowed(tt.p))
		})
	}
}

// TestPurpose: Validates the denied presentation of an action.
// Scope: Unit Test
// Expected: Fallback by default, Locked with ShowLock, and a locked control reports ErrPermissionDenied.
// Test Case ID: GRD-02
func TestAction_Evaluate(t *testing.T) {
	p := withPerms("challenge_view")

	assert.Equal(t, Render, Action{Permission: "challenge_view"}.Evaluate(p))
	assert.Equal(t, Fallback, Action{Permission: "challenge_delete"}.Evaluate(p))

	locked := Action{Permission: "challenge_delete", ShowLock: true}
	assert.Equal(t, Locked, locked.Evaluate(p))
	assert.ErrorIs(t, locked.Invoke(p), ErrPermissionDenied)

	// single token combined with a list
	combined := Action{Permission: "challenge_view", Permissions: []string{"pilot_view"}, RequireAll: true}
	assert.Equal(t, Fallback, combined.Evaluate(p))
}

// TestPurpose: Validates page gating including the empty requirement lists.
// Scope: Unit Test
// Security: Page gating
// Expected: Empty lists admit any principal; otherwise any listed permission or role admits.
// Test Case ID: GRD-03
func TestPage_Allows(t *testing.T) {
	p := withPerms("dashboard_view")
	p.Roles = authz.NewSet(authz.RoleViewer)
	admin := &authz.Principal{ID: "root", Roles: authz.NewSet(authz.RoleAdmin)}

	assert.True(t, Page{}.Allows(p))
	assert.True(t, Page{RequiredPermissions: []string{}}.Allows(p))
	assert.False(t, Page{}.Allows(nil))

	assert.True(t, Page{RequiredPermissions: []string{"dashboard_view", "x"}}.Allows(p))
	assert.True(t, Page{RequiredRoles: []string{authz.RoleViewer}}.Allows(p))
	assert.False(t, Page{RequiredRoles: []string{authz.RoleAdmin}}.Allows(p))
	assert.True(t, Page{RequiredRoles: []string{authz.RoleMunicipalityAdmin}}.Allows(admin))
}

// TestPurpose: Validates the page middleware status mapping.
// Scope: Unit Test
// Expected: No principal yields the authentication error, insufficient principal the permission error, otherwise pass through.
// Test Case ID: GRD-04
func TestRequirePage_Middleware(t *testing.T) {
	var denied error
	deny := func(w http.ResponseWriter, _ *http.Request, err error) {
		denied = err
		w.WriteHeader(http.StatusForbidden)
	}
	h := RequirePage(Page{RequiredRoles: []string{authz.RoleAdmin}}, deny)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	run := func(p *authz.Principal) int {
		denied = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if p != nil {
			req = req.WithContext(authz.WithPrincipal(req.Context(), p))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, run(nil))
	assert.True(t, errors.Is(denied, session.ErrAuthenticationMissing))

	assert.Equal(t, http.StatusForbidden, run(withPerms("x")))
	assert.ErrorIs(t, denied, ErrPermissionDenied)

	assert.Equal(t, http.StatusNoContent, run(&authz.Principal{ID: "root", Roles: authz.NewSet(authz.RoleAdmin)}))
	assert.NoError(t, denied)
}
