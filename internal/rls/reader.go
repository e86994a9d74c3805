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

package rls

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/entity"
	"github.com/opentrusty/civicguard/internal/fieldsec"
	"github.com/opentrusty/civicguard/internal/observability/logger"
)

var tracer = otel.Tracer("github.com/opentrusty/civicguard/internal/rls")

// DecisionRecorder observes row decisions.
type DecisionRecorder interface {
	RLSDecision(ctx context.Context, t entity.Type, reason string, allowed bool)
}

// Reader is the gated read path over an entity store. Rows are filtered by
// the engine and sensitive fields are stripped before records leave it.
type Reader struct {
	store    entity.Store
	engine   *Engine
	fields   *fieldsec.Enforcer
	recorder DecisionRecorder
}

// NewReader creates a gated reader. recorder may be nil.
func NewReader(store entity.Store, engine *Engine, fields *fieldsec.Enforcer, recorder DecisionRecorder) *Reader {
	return &Reader{store: store, engine: engine, fields: fields, recorder: recorder}
}

// List returns the records of t matching base that p may see.
func (r *Reader) List(ctx context.Context, p *authz.Principal, t entity.Type, base entity.Filter) ([]entity.Record, error) {
	ctx, span := tracer.Start(ctx, "rls.List")
	defer span.End()

	d := r.engine.Decide(p, t)
	span.SetAttributes(
		attribute.String("entity.type", string(t)),
		attribute.String("rls.reason", d.Reason),
		attribute.String("rls.shape", string(d.Shape)),
	)
	r.record(ctx, t, d.Reason, !d.Filter.IsNone())

	f := entity.And(base, d.Filter)
	if f.IsNone() {
		return []entity.Record{}, nil
	}

	records, err := r.store.List(ctx, t, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", t, err)
	}

	// Stores may over-approximate the pushed filter.
	out := make([]entity.Record, 0, len(records))
	for _, rec := range records {
		if f.Match(rec) {
			out = append(out, r.fields.FilterSensitiveFields(p, t, rec))
		}
	}
	return out, nil
}

// Get returns one record. Records p may not see are reported as
// entity.ErrNotFound.
func (r *Reader) Get(ctx context.Context, p *authz.Principal, t entity.Type, id string) (entity.Record, error) {
	ctx, span := tracer.Start(ctx, "rls.Get")
	defer span.End()
	span.SetAttributes(attribute.String("entity.type", string(t)), attribute.String("entity.id", id))

	rec, err := r.store.Get(ctx, t, id)
	if err != nil {
		return nil, err
	}

	d := r.engine.Decide(p, t)
	allowed := d.Filter.Match(rec)
	r.record(ctx, t, d.Reason, allowed)
	if !allowed {
		slog.DebugContext(ctx, "row hidden by rls",
			logger.EntityType(string(t)),
			logger.EntityID(id),
			logger.Shape(string(d.Shape)),
		)
		return nil, entity.ErrNotFound
	}
	return r.fields.FilterSensitiveFields(p, t, rec), nil
}

func (r *Reader) record(ctx context.Context, t entity.Type, reason string, allowed bool) {
	if r.recorder != nil {
		r.recorder.RLSDecision(ctx, t, reason, allowed)
	}
}
