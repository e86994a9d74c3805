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
	"encoding/json"
	"net/http"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/guard"
)

// CheckActionRequest describes a permission-gated control.
type CheckActionRequest struct {
	Permissions []string `json:"permissions"`
	RequireAll  bool     `json:"require_all"`
	ShowLock    bool     `json:"show_lock"`
}

// CheckActionResponse tells the caller how to present the control.
type CheckActionResponse struct {
	Allowed bool   `json:"allowed"`
	Outcome string `json:"outcome"`
}

// GetCurrentPrincipal returns the caller's resolved principal.
// @Summary Current principal
// @Tags Authorization
// @Produce json
// @Security BearerAuth
// @Success 200 {object} authz.Principal
// @Router /me [get]
func (h *Handler) GetCurrentPrincipal(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, authz.FromContext(r.Context()))
}

// CheckAction evaluates a guarded action for the caller.
// @Summary Evaluate action guard
// @Tags Authorization
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CheckActionRequest true "Action"
// @Success 200 {object} CheckActionResponse
// @Router /me/check [post]
func (h *Handler) CheckAction(w http.ResponseWriter, r *http.Request) {
	var req CheckActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a := guard.Action{Permissions: req.Permissions, RequireAll: req.RequireAll, ShowLock: req.ShowLock}
	p := authz.FromContext(r.Context())
	respondJSON(w, http.StatusOK, CheckActionResponse{
		Allowed: a.Allowed(p),
		Outcome: a.Evaluate(p).String(),
	})
}
