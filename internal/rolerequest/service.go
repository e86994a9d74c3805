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

package rolerequest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opentrusty/civicguard/internal/audit"
	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/id"
	"github.com/opentrusty/civicguard/internal/notify"
	"github.com/opentrusty/civicguard/internal/observability/logger"
	"github.com/opentrusty/civicguard/internal/session"
)

var tracer = otel.Tracer("github.com/opentrusty/civicguard/internal/rolerequest")

// Outcomes reported to the Recorder.
const (
	OutcomeSubmitted   = "submitted"
	OutcomeRateLimited = "rate_limited"
	OutcomeApproved    = "approved"
	OutcomeRejected    = "rejected"
	OutcomeGrantFailed = "grant_failed"
)

// Config bounds the request rate.
type Config struct {
	MaxPerWindow int
	Window       time.Duration
}

// DefaultConfig allows three requests per rolling 24 hours.
func DefaultConfig() Config {
	return Config{MaxPerWindow: 3, Window: 24 * time.Hour}
}

// RequestInput is what a principal submits.
type RequestInput struct {
	RequestedRole string `json:"requested_role" validate:"required,requestable_role"`
	Justification string `json:"justification" validate:"required,max=2000"`
}

// Result is a persisted request plus the notification outcome. The
// operation succeeded whenever Request is set, whatever Notification says.
type Result struct {
	Request      *RoleRequest
	Notification notify.Result
}

// Service runs the role request lifecycle.
type Service struct {
	repo        Repository
	granter     RoleGranter
	invalidator Invalidator
	sink        notify.Sink
	auditLogger audit.Logger
	recorder    Recorder
	cfg         Config
	validate    *validator.Validate
	now         func() time.Time
}

// NewService creates the lifecycle service. sink, invalidator and recorder may be nil.
func NewService(
	repo Repository,
	granter RoleGranter,
	invalidator Invalidator,
	sink notify.Sink,
	auditLogger audit.Logger,
	recorder Recorder,
	cfg Config,
) *Service {
	if cfg.MaxPerWindow <= 0 || cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	return &Service{
		repo:        repo,
		granter:     granter,
		invalidator: invalidator,
		sink:        sink,
		auditLogger: auditLogger,
		recorder:    recorder,
		cfg:         cfg,
		validate:    NewValidator(),
		now:         time.Now,
	}
}

// NewValidator returns a validator that knows the requestable_role tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("requestable_role", func(fl validator.FieldLevel) bool {
		return slices.Contains(authz.RequestableRoles, fl.Field().String())
	})
	return v
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fieldName(fe.Field()), Reason: fe.Tag()}
	}
	return &ValidationError{Field: "request", Reason: err.Error()}
}

func fieldName(structField string) string {
	switch structField {
	case "RequestedRole":
		return "requested_role"
	case "Justification":
		return "justification"
	case "Role":
		return "role"
	}
	return strings.ToLower(structField)
}

// RequestRole files a new pending request for p.
//
// The rolling window count is read before the write. Two concurrent calls
// can both pass the check and overshoot the limit by one.
func (s *Service) RequestRole(ctx context.Context, p *authz.Principal, in RequestInput) (*Result, error) {
	ctx, span := tracer.Start(ctx, "rolerequest.RequestRole")
	defer span.End()

	if p == nil {
		return nil, session.ErrAuthenticationMissing
	}
	in.RequestedRole = strings.TrimSpace(in.RequestedRole)
	in.Justification = strings.TrimSpace(in.Justification)
	if err := s.validate.Struct(in); err != nil {
		return nil, toValidationError(err)
	}
	if p.Email == "" {
		return nil, &ValidationError{Field: "email", Reason: "required"}
	}
	if p.HasRole(in.RequestedRole) {
		return nil, &ValidationError{Field: "requested_role", Reason: "already_held"}
	}
	span.SetAttributes(attribute.String("role_request.role", in.RequestedRole))

	now := s.now().UTC()
	count, err := s.repo.CountByEmailSince(ctx, p.Email, now.Add(-s.cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent requests: %w", err)
	}
	if count >= s.cfg.MaxPerWindow {
		s.record(ctx, OutcomeRateLimited)
		s.audit(ctx, audit.Event{
			Type:       audit.TypeRoleRequestLimited,
			ActorID:    p.ID,
			ActorEmail: p.Email,
			Resource:   "role_request",
			Metadata:   map[string]any{"requested_role": in.RequestedRole, "window_count": count},
		})
		return nil, ErrRateLimitExceeded
	}

	req := &RoleRequest{
		ID:            id.NewUUIDv7(),
		UserID:        p.ID,
		UserEmail:     p.Email,
		RequestedRole: in.RequestedRole,
		Justification: in.Justification,
		Status:        StatusPending,
		CreatedAt:     now,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create role request: %w", err)
	}

	s.record(ctx, OutcomeSubmitted)
	s.audit(ctx, audit.Event{
		Type:       audit.TypeRoleRequestSubmitted,
		ActorID:    p.ID,
		ActorEmail: p.Email,
		Resource:   "role_request:" + req.ID,
		Metadata:   map[string]any{"requested_role": req.RequestedRole},
	})
	slog.InfoContext(ctx, "role request submitted",
		logger.RoleRequestID(req.ID),
		logger.UserID(p.ID),
		logger.Role(req.RequestedRole),
	)

	res := s.notify(ctx, req, notify.TypeRoleRequestSubmitted, nil)
	return &Result{Request: req, Notification: res}, nil
}

// ApproveRequest approves a pending request and grants the role.
//
// The caller is trusted to be an admin; the HTTP layer gates this route.
// The request is claimed first so two approvals cannot both grant. If the
// grant then fails the request is reopened and the error returned.
func (s *Service) ApproveRequest(ctx context.Context, admin *authz.Principal, requestID string, a Assignment) (*Result, error) {
	ctx, span := tracer.Start(ctx, "rolerequest.ApproveRequest")
	defer span.End()
	span.SetAttributes(attribute.String("role_request.id", requestID))

	if admin == nil {
		return nil, session.ErrAuthenticationMissing
	}
	if err := s.validate.Struct(a); err != nil {
		return nil, toValidationError(err)
	}

	req, err := s.repo.Resolve(ctx, requestID, Resolution{
		Status:        StatusApproved,
		ReviewNotes:   strings.TrimSpace(a.Notes),
		ApproverEmail: actorEmail(admin),
		ResolvedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if a.Role == "" {
		a.Role = req.RequestedRole
	}
	if err := s.granter.GrantRole(ctx, req.UserID, a); err != nil {
		s.record(ctx, OutcomeGrantFailed)
		if rerr := s.repo.Reopen(ctx, req.ID); rerr != nil {
			slog.ErrorContext(ctx, "failed to reopen role request after grant failure",
				logger.RoleRequestID(req.ID),
				logger.Error(rerr),
			)
		}
		return nil, fmt.Errorf("failed to grant role: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, req.UserID)
	}

	s.record(ctx, OutcomeApproved)
	s.audit(ctx, audit.Event{
		Type:       audit.TypeRoleGranted,
		ActorID:    actorID(admin),
		ActorEmail: actorEmail(admin),
		Resource:   "user:" + req.UserID,
		Metadata:   map[string]any{"role": a.Role, "role_request_id": req.ID},
	})
	s.audit(ctx, audit.Event{
		Type:       audit.TypeRoleRequestApproved,
		ActorID:    actorID(admin),
		ActorEmail: actorEmail(admin),
		Resource:   "role_request:" + req.ID,
	})
	slog.InfoContext(ctx, "role request approved",
		logger.RoleRequestID(req.ID),
		logger.UserID(req.UserID),
		logger.Role(a.Role),
	)

	res := s.notify(ctx, req, notify.TypeRoleRequestApproved, map[string]any{"granted_role": a.Role})
	return &Result{Request: req, Notification: res}, nil
}

// RejectRequest rejects a pending request with reason as review notes.
func (s *Service) RejectRequest(ctx context.Context, admin *authz.Principal, requestID, reason string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "rolerequest.RejectRequest")
	defer span.End()
	span.SetAttributes(attribute.String("role_request.id", requestID))

	if admin == nil {
		return nil, session.ErrAuthenticationMissing
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > 2000 {
		return nil, &ValidationError{Field: "reason", Reason: "max"}
	}

	req, err := s.repo.Resolve(ctx, requestID, Resolution{
		Status:        StatusRejected,
		ReviewNotes:   reason,
		ApproverEmail: actorEmail(admin),
		ResolvedAt:    s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, OutcomeRejected)
	s.audit(ctx, audit.Event{
		Type:       audit.TypeRoleRequestRejected,
		ActorID:    actorID(admin),
		ActorEmail: actorEmail(admin),
		Resource:   "role_request:" + req.ID,
	})
	slog.InfoContext(ctx, "role request rejected", logger.RoleRequestID(req.ID), logger.UserID(req.UserID))

	// Review notes are reviewer-only and stay out of the payload.
	res := s.notify(ctx, req, notify.TypeRoleRequestRejected, nil)
	return &Result{Request: req, Notification: res}, nil
}

// ListPendingRequests returns pending requests, newest first.
func (s *Service) ListPendingRequests(ctx context.Context) ([]*RoleRequest, error) {
	return s.repo.ListByStatus(ctx, StatusPending)
}

// GetRequest returns one request. Callers retrying a timed-out resolution
// should check Status here before trying again.
func (s *Service) GetRequest(ctx context.Context, requestID string) (*RoleRequest, error) {
	return s.repo.Get(ctx, requestID)
}

func (s *Service) notify(ctx context.Context, req *RoleRequest, typ string, extra map[string]any) notify.Result {
	payload := map[string]any{
		"role_request_id": req.ID,
		"requested_role":  req.RequestedRole,
		"status":          string(req.Status),
	}
	for k, v := range extra {
		payload[k] = v
	}
	res := notify.Deliver(ctx, s.sink, notify.Notification{
		Type:      typ,
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
		Payload:   payload,
	})
	if res.Err != nil {
		s.audit(ctx, audit.Event{
			Type:     audit.TypeNotificationFailed,
			ActorID:  req.UserID,
			Resource: "role_request:" + req.ID,
			Metadata: map[string]any{"notification_type": typ, "error": res.Err.Error()},
		})
	}
	return res
}

func (s *Service) audit(ctx context.Context, e audit.Event) {
	if s.auditLogger != nil {
		s.auditLogger.Log(ctx, e)
	}
}

func (s *Service) record(ctx context.Context, outcome string) {
	if s.recorder != nil {
		s.recorder.RoleRequestOutcome(ctx, outcome)
	}
}

func actorID(p *authz.Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}

func actorEmail(p *authz.Principal) string {
	if p == nil {
		return ""
	}
	return p.Email
}
