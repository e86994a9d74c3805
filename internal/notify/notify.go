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

// Package notify delivers user notifications emitted by the role request
// lifecycle. Delivery is best-effort from the caller's point of view.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentrusty/civicguard/internal/entity"
	"github.com/opentrusty/civicguard/internal/observability/logger"
)

// Notification types
const (
	TypeRoleRequestSubmitted = "role_request_submitted"
	TypeRoleRequestApproved  = "role_request_approved"
	TypeRoleRequestRejected  = "role_request_rejected"
)

// Notification is a message addressed to one user.
type Notification struct {
	Type      string         `json:"type"`
	UserID    string         `json:"user_id"`
	UserEmail string         `json:"user_email"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Sink accepts notifications for delivery.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// Result reports the outcome of a best-effort send.
type Result struct {
	Attempted bool
	Delivered bool
	Err       error
}

// Deliver sends n on sink and reports the outcome without failing the caller.
// A nil sink is reported as not attempted.
func Deliver(ctx context.Context, sink Sink, n Notification) Result {
	if sink == nil {
		return Result{}
	}
	if err := sink.Send(ctx, n); err != nil {
		slog.WarnContext(ctx, "notification delivery failed",
			logger.NotificationType(n.Type),
			logger.UserID(n.UserID),
			logger.Error(err),
		)
		return Result{Attempted: true, Err: err}
	}
	return Result{Attempted: true, Delivered: true}
}

// LogSink writes notifications to the structured log.
type LogSink struct{}

func (LogSink) Send(ctx context.Context, n Notification) error {
	slog.InfoContext(ctx, "notification",
		logger.NotificationType(n.Type),
		logger.UserID(n.UserID),
		logger.Email(n.UserEmail),
	)
	return nil
}

// StoreSink persists notifications as Notification entities so recipients
// can read them back through the gated reader.
type StoreSink struct {
	store entity.Store
	now   func() time.Time
}

// NewStoreSink creates a sink writing to store.
func NewStoreSink(store entity.Store) *StoreSink {
	return &StoreSink{store: store, now: time.Now}
}

func (s *StoreSink) Send(ctx context.Context, n Notification) error {
	rec := entity.Record{
		"type":       n.Type,
		"user_id":    n.UserID,
		"user_email": n.UserEmail,
		"read":       false,
		"created_at": s.now().UTC().Format(time.RFC3339),
	}
	if len(n.Payload) > 0 {
		rec["payload"] = n.Payload
	}
	if _, err := s.store.Create(ctx, entity.TypeNotification, rec); err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}
	return nil
}

// MultiSink fans a notification out to every sink. All sinks are tried;
// failures are joined.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
