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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/entity"
	"github.com/opentrusty/civicguard/internal/fieldsec"
	"github.com/opentrusty/civicguard/internal/rls"
	"github.com/opentrusty/civicguard/internal/rolerequest"
	"github.com/opentrusty/civicguard/internal/session"
	"github.com/opentrusty/civicguard/internal/store/memory"
)

type testEnv struct {
	router   http.Handler
	verifier *session.JWTVerifier
	store    *entity.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, RouterConfig{
		SubmitPerUser: 10,
		SubmitWindow:  time.Minute,
	})
}

func newTestEnvWith(t *testing.T, cfg RouterConfig) *testEnv {
	t.Helper()
	ctx := context.Background()

	dir := memory.NewDirectory(memory.DefaultRolePermissions())
	dir.PutProfile(authz.Profile{UserID: "u-admin", Email: "admin@city.gov"})
	dir.PutProfile(authz.Profile{UserID: "u-staff", Email: "staff@city.gov", MunicipalityID: "m-1"})
	require.NoError(t, dir.GrantRole(ctx, "u-admin", rolerequest.Assignment{Role: authz.RoleAdmin}))
	require.NoError(t, dir.GrantRole(ctx, "u-staff", rolerequest.Assignment{Role: authz.RoleMunicipalityStaff}))

	store := entity.NewMemoryStore()
	_, err := store.Create(ctx, entity.TypeChallenge, entity.Record{"id": "c-1", "municipality_id": "m-1", "budget": 5000})
	require.NoError(t, err)
	_, err = store.Create(ctx, entity.TypeChallenge, entity.Record{"id": "c-2", "municipality_id": "m-2"})
	require.NoError(t, err)

	principals := authz.NewService(dir, dir, dir, nil, nil)
	engine := rls.New(rls.DefaultTable())
	fields := fieldsec.New(fieldsec.DefaultRules())
	reader := rls.NewReader(store, engine, fields, nil)
	requests := rolerequest.NewService(rolerequest.NewMemoryRepository(), dir, principals, nil, nil, nil, rolerequest.DefaultConfig())
	verifier := session.NewJWTVerifier("test-secret", "civicguard-test")

	h := NewHandler(verifier, principals, engine, reader, fields, requests, nil, cfg)
	return &testEnv{router: NewRouter(h, nil), verifier: verifier, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, userID, email string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := e.verifier.Issue(userID, email, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// TestPurpose: Validates that API routes require a verified bearer token.
// Scope: Unit Test
// Security: Authentication boundary
// Expected: Missing and forged tokens get 401; health stays public.
// Test Case ID: HTP-01
func TestRouter_RequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/v1/me", "", "", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestPurpose: Validates that /me returns the resolved principal.
// Scope: Unit Test
// Expected: The staff principal carries its role and municipality scope.
// Test Case ID: HTP-02
func TestRouter_CurrentPrincipal(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/me", "u-staff", "staff@city.gov", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var p authz.Principal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "u-staff", p.ID)
	assert.Equal(t, "m-1", p.MunicipalityID)
	assert.True(t, p.HasRole(authz.RoleMunicipalityStaff))
}

// TestPurpose: Validates row and field filtering on entity reads.
// Scope: Unit Test
// Security: Cross-municipality isolation and sensitive field stripping
// Expected: Staff see only their municipality's challenge, without budget; the other reads as missing.
// Test Case ID: HTP-03
func TestRouter_EntityReadsAreFiltered(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/entities/Challenge", "u-staff", "staff@city.gov", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "c-1", records[0]["id"])
	assert.NotContains(t, records[0], "budget")

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/entities/Challenge/c-2", "u-staff", "staff@city.gov", nil).Code)

	w = env.do(t, http.MethodGet, "/api/v1/entities/Challenge/c-1", "u-admin", "admin@city.gov", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "budget")

	w = env.do(t, http.MethodGet, "/api/v1/entities/Challenge?municipality_id=m-2", "u-staff", "staff@city.gov", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

// TestPurpose: Validates the policy endpoint explains the applied filter.
// Scope: Unit Test
// Expected: Admin gets the admin reason; staff get the municipality shape.
// Test Case ID: HTP-04
func TestRouter_Policy(t *testing.T) {
	env := newTestEnv(t)

	var pol PolicyResponse
	w := env.do(t, http.MethodGet, "/api/v1/entities/Challenge/policy", "u-admin", "admin@city.gov", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pol))
	assert.Equal(t, rls.ReasonAdmin, pol.Reason)

	w = env.do(t, http.MethodGet, "/api/v1/entities/Challenge/policy", "u-staff", "staff@city.gov", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pol))
	assert.Equal(t, rls.ReasonShape, pol.Reason)
	assert.Equal(t, string(rls.ShapeMunicipality), pol.Shape)
}

// TestPurpose: Validates the action check endpoint.
// Scope: Unit Test
// Expected: Held permissions render; missing ones lock when requested.
// Test Case ID: HTP-05
func TestRouter_CheckAction(t *testing.T) {
	env := newTestEnv(t)

	var res CheckActionResponse
	w := env.do(t, http.MethodPost, "/api/v1/me/check", "u-staff", "staff@city.gov",
		CheckActionRequest{Permissions: []string{"challenge_create"}})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Allowed)
	assert.Equal(t, "render", res.Outcome)

	w = env.do(t, http.MethodPost, "/api/v1/me/check", "u-staff", "staff@city.gov",
		CheckActionRequest{Permissions: []string{"challenge_delete"}, ShowLock: true})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Allowed)
	assert.Equal(t, "locked", res.Outcome)
}

// TestPurpose: Validates the role request lifecycle over HTTP.
// Scope: Unit Test
// Security: Admin-only review routes; single resolution
// Expected: Submit 201, non-admin review 403, approve 200, second approve 409, role visible afterwards.
// Test Case ID: HTP-06
func TestRouter_RoleRequestLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/role-requests", "u-staff", "staff@city.gov",
		rolerequest.RequestInput{RequestedRole: authz.RoleProvider, Justification: "running a pilot"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created RoleRequestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotNil(t, created.Request)
	assert.Equal(t, string(rolerequest.StatusPending), created.Request.String("status"))
	assert.False(t, created.Notification.Attempted)
	reqID := created.Request.String("id")
	require.NotEmpty(t, reqID)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/v1/role-requests/pending", "u-staff", "staff@city.gov", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/role-requests/"+reqID, "u-staff", "staff@city.gov", nil).Code)

	w = env.do(t, http.MethodGet, "/api/v1/role-requests/pending", "u-admin", "admin@city.gov", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), reqID)

	path := "/api/v1/role-requests/" + reqID + "/approve"
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, path, "u-staff", "staff@city.gov", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, path, "u-admin", "admin@city.gov", nil).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, path, "u-admin", "admin@city.gov", nil).Code)

	w = env.do(t, http.MethodGet, "/api/v1/me", "u-staff", "staff@city.gov", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p authz.Principal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.True(t, p.HasRole(authz.RoleProvider))
}

// TestPurpose: Validates submission errors map to client status codes.
// Scope: Unit Test
// Expected: Unknown roles give 400; the fourth request in a window gives 429.
// Test Case ID: HTP-07
func TestRouter_RoleRequestErrors(t *testing.T) {
	env := newTestEnv(t)
	submit := func(role string) int {
		return env.do(t, http.MethodPost, "/api/v1/role-requests", "u-staff", "staff@city.gov",
			rolerequest.RequestInput{RequestedRole: role, Justification: "needed"}).Code
	}

	assert.Equal(t, http.StatusBadRequest, submit("superuser"))
	assert.Equal(t, http.StatusBadRequest, submit(authz.RoleAdmin))
	for range 3 {
		assert.Equal(t, http.StatusCreated, submit(authz.RoleAcademic))
	}
	w := env.do(t, http.MethodPost, "/api/v1/role-requests", "u-staff", "staff@city.gov",
		rolerequest.RequestInput{RequestedRole: authz.RoleAcademic, Justification: "needed"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), rolerequest.ErrRateLimitExceeded.Error())

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/v1/role-requests/missing/reject", "u-admin", "admin@city.gov",
		RejectRequest{Reason: "no"}).Code)
}

// TestPurpose: Validates that review notes are only shown to reviewers.
// Scope: Unit Test
// Security: Field-level filtering on role request views (CWE-200)
// Expected: The requester's view omits review_notes; the admin's view includes them.
// Test Case ID: HTP-08
func TestRouter_RoleRequestReviewNotesFiltered(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/role-requests", "u-staff", "staff@city.gov",
		rolerequest.RequestInput{RequestedRole: authz.RoleProvider, Justification: "running a pilot"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created RoleRequestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	reqID := created.Request.String("id")

	w = env.do(t, http.MethodPost, "/api/v1/role-requests/"+reqID+"/reject", "u-admin", "admin@city.gov",
		RejectRequest{Reason: "internal: vendor under review"})
	require.Equal(t, http.StatusOK, w.Code)
	var rejected RoleRequestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.Equal(t, "internal: vendor under review", rejected.Request.String("review_notes"))

	w = env.do(t, http.MethodGet, "/api/v1/role-requests/"+reqID, "u-staff", "staff@city.gov", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var own entity.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &own))
	assert.Equal(t, string(rolerequest.StatusRejected), own.String("status"))
	assert.NotContains(t, own, "review_notes")
	assert.Equal(t, "admin@city.gov", own.String("approver_email"))

	w = env.do(t, http.MethodGet, "/api/v1/role-requests/"+reqID, "u-admin", "admin@city.gov", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reviewed entity.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reviewed))
	assert.Equal(t, "internal: vendor under review", reviewed.String("review_notes"))
}

// TestPurpose: Validates the submission burst limiter is distinguishable from the rolling window limit.
// Scope: Unit Test
// Security: Abuse prevention on role escalation requests
// Expected: The second submission inside the burst window gets 429 with the burst message, not the 24h message.
// Test Case ID: HTP-09
func TestRouter_SubmitBurstLimit(t *testing.T) {
	env := newTestEnvWith(t, RouterConfig{SubmitPerUser: 1, SubmitWindow: time.Minute})
	submit := func() *httptest.ResponseRecorder {
		return env.do(t, http.MethodPost, "/api/v1/role-requests", "u-staff", "staff@city.gov",
			rolerequest.RequestInput{RequestedRole: authz.RoleAcademic, Justification: "needed"})
	}

	assert.Equal(t, http.StatusCreated, submit().Code)
	w := submit()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), SubmitThrottledMessage)
	assert.NotContains(t, w.Body.String(), rolerequest.ErrRateLimitExceeded.Error())
}
