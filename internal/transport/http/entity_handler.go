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
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/entity"
)

// PolicyResponse explains the row filter applied to the caller.
type PolicyResponse struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Shape  string `json:"shape,omitempty"`
	Filter string `json:"filter"`
}

// ListEntities returns the records of one type the caller may see. Query
// parameters narrow the result with equality filters.
// @Summary List entities
// @Tags Entities
// @Produce json
// @Security BearerAuth
// @Param type path string true "Entity type"
// @Success 200 {array} map[string]interface{}
// @Router /entities/{type} [get]
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	t, err := entity.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	records, err := h.reader.List(r.Context(), authz.FromContext(r.Context()), t, baseFilter(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []entity.Record{}
	}
	respondJSON(w, http.StatusOK, records)
}

// GetEntity returns one record. Records hidden by row policy read as missing.
// @Summary Get entity
// @Tags Entities
// @Produce json
// @Security BearerAuth
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /entities/{type}/{id} [get]
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	t, err := entity.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	rec, err := h.reader.Get(r.Context(), authz.FromContext(r.Context()), t, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// GetVisibleFields reports which restricted fields of a type the caller sees.
func (h *Handler) GetVisibleFields(w http.ResponseWriter, r *http.Request) {
	t, err := entity.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"type":   string(t),
		"fields": h.fields.VisibleFields(authz.FromContext(r.Context()), t),
	})
}

// GetPolicy returns the row filter decision for the caller.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	t, err := entity.ParseType(chi.URLParam(r, "type"))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	d := h.engine.Decide(authz.FromContext(r.Context()), t)
	respondJSON(w, http.StatusOK, PolicyResponse{
		Type:   string(d.Type),
		Reason: d.Reason,
		Shape:  string(d.Shape),
		Filter: d.Filter.String(),
	})
}

func baseFilter(r *http.Request) entity.Filter {
	q := r.URL.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	filters := make([]entity.Filter, 0, len(keys))
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			filters = append(filters, entity.Eq(k, v))
		}
	}
	return entity.And(filters...)
}
