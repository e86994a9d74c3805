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

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opentrusty/civicguard/internal/entity"
)

// Recorder holds the authorization instruments.
type Recorder struct {
	rlsDecisions   metric.Int64Counter
	lookupDegraded metric.Int64Counter
	roleRequests   metric.Int64Counter
}

// NewRecorder creates the authorization instruments on m.
func NewRecorder(m *Meter) (*Recorder, error) {
	rls, err := m.CreateCounter("civicguard.rls.decisions", "Row-level security decisions by entity type and reason")
	if err != nil {
		return nil, err
	}
	degraded, err := m.CreateCounter("civicguard.authz.lookup_degraded", "Principal lookups resolved to an empty set after a failure")
	if err != nil {
		return nil, err
	}
	requests, err := m.CreateCounter("civicguard.role_requests", "Role request lifecycle outcomes")
	if err != nil {
		return nil, err
	}
	return &Recorder{rlsDecisions: rls, lookupDegraded: degraded, roleRequests: requests}, nil
}

func (r *Recorder) RLSDecision(ctx context.Context, t entity.Type, reason string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	r.rlsDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity_type", string(t)),
		attribute.String("reason", reason),
		attribute.String("outcome", outcome),
	))
}

func (r *Recorder) LookupDegraded(ctx context.Context, dimension string) {
	r.lookupDegraded.Add(ctx, 1, metric.WithAttributes(attribute.String("dimension", dimension)))
}

func (r *Recorder) RoleRequestOutcome(ctx context.Context, outcome string) {
	r.roleRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
