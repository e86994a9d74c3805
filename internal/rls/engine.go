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

// Package rls decides which records of an entity type a principal may see.
//
// Every decision is expressed as an entity.Filter. The client-side check
// evaluates the same filter that is pushed down to the store, so both paths
// agree for any principal and record.
//
// Entity types without rules in the table are open to every caller,
// including unauthenticated ones. Register a rule before storing anything
// sensitive under a new type.
package rls

import (
	"sort"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/entity"
)

// Decision explains how a filter was chosen.
type Decision struct {
	Type   entity.Type
	Shape  Shape
	Reason string
	Filter entity.Filter
}

// Decision reasons.
const (
	ReasonOpenAccess = "open_access"
	ReasonAdmin      = "admin"
	ReasonViewAll    = "view_all"
	ReasonShape      = "shape"
	ReasonFallback   = "creator_fallback"
	ReasonNoSession  = "unauthenticated"
)

// Engine evaluates a rule table.
type Engine struct {
	table Table
}

// New creates an engine over table.
func New(table Table) *Engine {
	if table == nil {
		table = Table{}
	}
	return &Engine{table: table}
}

// HasRules reports whether rows of t are guarded.
func (e *Engine) HasRules(t entity.Type) bool {
	return len(e.table[t]) > 0
}

// Registered lists the guarded entity types, sorted.
func (e *Engine) Registered() []entity.Type {
	out := make([]entity.Type, 0, len(e.table))
	for t, rules := range e.table {
		if len(rules) > 0 {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decide resolves the visibility filter for p on t.
func (e *Engine) Decide(p *authz.Principal, t entity.Type) Decision {
	d := Decision{Type: t}
	rules := e.table[t]
	switch {
	case len(rules) == 0:
		d.Reason, d.Filter = ReasonOpenAccess, entity.All()
	case p == nil:
		d.Reason, d.Filter = ReasonNoSession, entity.None()
	case p.IsAdmin():
		d.Reason, d.Filter = ReasonAdmin, entity.All()
	case p.HasPermission(authz.ViewAll(t)):
		d.Reason, d.Filter = ReasonViewAll, entity.All()
	default:
		for _, s := range Precedence {
			scope, ok := rules[s]
			if ok && s.Matches(p) {
				d.Shape, d.Reason, d.Filter = s, ReasonShape, scope(p)
				return d
			}
		}
		scope, ok := rules[ShapeCreator]
		if !ok {
			scope = createdBy
		}
		d.Shape, d.Reason, d.Filter = ShapeCreator, ReasonFallback, scope(p)
	}
	return d
}

// GetEntityQuery returns the filter derived purely from p.
func (e *Engine) GetEntityQuery(p *authz.Principal, t entity.Type) entity.Filter {
	return e.Decide(p, t).Filter
}

// ApplyRLS narrows base to the rows p may see.
func (e *Engine) ApplyRLS(p *authz.Principal, t entity.Type, base entity.Filter) entity.Filter {
	return entity.And(base, e.GetEntityQuery(p, t))
}

// CanAccessEntity reports whether p may see r.
func (e *Engine) CanAccessEntity(p *authz.Principal, t entity.Type, r entity.Record) bool {
	return e.GetEntityQuery(p, t).Match(r)
}

// FilterEntities keeps the records p may see, preserving order.
func (e *Engine) FilterEntities(p *authz.Principal, t entity.Type, records []entity.Record) []entity.Record {
	f := e.GetEntityQuery(p, t)
	out := make([]entity.Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
