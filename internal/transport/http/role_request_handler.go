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
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/entity"
	"github.com/opentrusty/civicguard/internal/notify"
	"github.com/opentrusty/civicguard/internal/rolerequest"
)

// NotificationStatus reports the best-effort notification outcome.
type NotificationStatus struct {
	Attempted bool   `json:"attempted"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// RoleRequestResponse wraps the field-filtered request with its notification outcome.
type RoleRequestResponse struct {
	Request      entity.Record      `json:"request"`
	Notification NotificationStatus `json:"notification"`
}

// RejectRequest carries the rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// view is the only way a role request leaves the API.
func (h *Handler) view(p *authz.Principal, req *rolerequest.RoleRequest) entity.Record {
	return h.fields.FilterSensitiveFields(p, entity.TypeRoleRequest, req.Record())
}

func (h *Handler) toResponse(p *authz.Principal, res *rolerequest.Result) RoleRequestResponse {
	return RoleRequestResponse{Request: h.view(p, res.Request), Notification: notificationStatus(res.Notification)}
}

func notificationStatus(n notify.Result) NotificationStatus {
	s := NotificationStatus{Attempted: n.Attempted, Delivered: n.Delivered}
	if n.Err != nil {
		s.Error = n.Err.Error()
	}
	return s
}

// SubmitRoleRequest files a role request for the caller.
// @Summary Request a role
// @Tags Role Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body rolerequest.RequestInput true "Role request"
// @Success 201 {object} RoleRequestResponse
// @Failure 400 {object} map[string]string
// @Failure 429 {object} map[string]string
// @Router /role-requests [post]
func (h *Handler) SubmitRoleRequest(w http.ResponseWriter, r *http.Request) {
	var in rolerequest.RequestInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := authz.FromContext(r.Context())
	res, err := h.requests.RequestRole(r.Context(), p, in)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.toResponse(p, res))
}

// ListPendingRoleRequests returns every pending request. Admin only.
// @Summary List pending role requests
// @Tags Role Requests
// @Produce json
// @Security BearerAuth
// @Success 200 {array} map[string]any
// @Router /role-requests/pending [get]
func (h *Handler) ListPendingRoleRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.requests.ListPendingRequests(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	p := authz.FromContext(r.Context())
	out := make([]entity.Record, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, h.view(p, req))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetRoleRequest returns a request to its owner or an admin.
// @Summary Get role request
// @Tags Role Requests
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role request ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]string
// @Router /role-requests/{id} [get]
func (h *Handler) GetRoleRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.requests.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	p := authz.FromContext(r.Context())
	if !p.IsAdmin() && req.UserID != p.ID {
		respondError(w, http.StatusNotFound, "role request not found")
		return
	}
	respondJSON(w, http.StatusOK, h.view(p, req))
}

// ApproveRoleRequest approves a pending request and grants the role.
// @Summary Approve role request
// @Tags Role Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role request ID"
// @Param request body rolerequest.Assignment false "Grant scope"
// @Success 200 {object} RoleRequestResponse
// @Failure 409 {object} map[string]string
// @Router /role-requests/{id}/approve [post]
func (h *Handler) ApproveRoleRequest(w http.ResponseWriter, r *http.Request) {
	var a rolerequest.Assignment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := authz.FromContext(r.Context())
	res, err := h.requests.ApproveRequest(r.Context(), p, chi.URLParam(r, "id"), a)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toResponse(p, res))
}

// RejectRoleRequest rejects a pending request.
// @Summary Reject role request
// @Tags Role Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Role request ID"
// @Param request body RejectRequest true "Reason"
// @Success 200 {object} RoleRequestResponse
// @Failure 409 {object} map[string]string
// @Router /role-requests/{id}/reject [post]
func (h *Handler) RejectRoleRequest(w http.ResponseWriter, r *http.Request) {
	var body RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := authz.FromContext(r.Context())
	res, err := h.requests.RejectRequest(r.Context(), p, chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.toResponse(p, res))
}
