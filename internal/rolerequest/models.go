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
	"time"

	"github.com/opentrusty/civicguard/internal/entity"
)

// Domain errors
var (
	ErrNotFound          = errors.New("role request not found")
	ErrRateLimitExceeded = errors.New("role request limit reached; try again in 24h")
	ErrInvalidTransition = errors.New("role request already resolved")
	ErrValidation        = errors.New("invalid role request")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Status is a role request state. Approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// RoleRequest is a principal's request for an additional role.
type RoleRequest struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	UserEmail     string     `json:"user_email"`
	RequestedRole string     `json:"requested_role"`
	Justification string     `json:"justification"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ReviewNotes   string     `json:"review_notes,omitempty"`
	ApproverEmail string     `json:"approver_email,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// Record returns the request as a schemaless record under its JSON names so
// field rules for entity.TypeRoleRequest can be applied before display.
func (r *RoleRequest) Record() entity.Record {
	rec := entity.Record{
		"id":             r.ID,
		"user_id":        r.UserID,
		"user_email":     r.UserEmail,
		"requested_role": r.RequestedRole,
		"justification":  r.Justification,
		"status":         string(r.Status),
		"created_at":     r.CreatedAt,
	}
	if r.ReviewNotes != "" {
		rec["review_notes"] = r.ReviewNotes
	}
	if r.ApproverEmail != "" {
		rec["approver_email"] = r.ApproverEmail
	}
	if r.ResolvedAt != nil {
		rec["resolved_at"] = *r.ResolvedAt
	}
	return rec
}

// Resolution is the terminal state written by Repository.Resolve.
type Resolution struct {
	Status        Status
	ReviewNotes   string
	ApproverEmail string
	ResolvedAt    time.Time
}

// Assignment describes the grant performed on approval. Empty scope fields
// leave the grantee's profile unchanged.
type Assignment struct {
	Role           string `json:"role" validate:"omitempty,requestable_role"`
	MunicipalityID string `json:"municipality_id,omitempty" validate:"omitempty,max=64"`
	OrganizationID string `json:"organization_id,omitempty" validate:"omitempty,max=64"`
	InstitutionID  string `json:"institution_id,omitempty" validate:"omitempty,max=64"`
	Notes          string `json:"notes,omitempty" validate:"max=2000"`
}

// Repository persists role requests.
type Repository interface {
	Create(ctx context.Context, req *RoleRequest) error
	Get(ctx context.Context, id string) (*RoleRequest, error)
	// CountByEmailSince counts requests by email created at or after since.
	CountByEmailSince(ctx context.Context, email string, since time.Time) (int, error)
	// ListByStatus returns requests in status, newest first.
	ListByStatus(ctx context.Context, status Status) ([]*RoleRequest, error)
	// Resolve moves a pending request to a terminal state. It fails with
	// ErrInvalidTransition when the request is no longer pending.
	Resolve(ctx context.Context, id string, res Resolution) (*RoleRequest, error)
	// Reopen moves an approved request back to pending. Used only when the
	// grant that followed approval failed.
	Reopen(ctx context.Context, id string) error
}

// RoleGranter performs the actual role grant.
type RoleGranter interface {
	GrantRole(ctx context.Context, userID string, a Assignment) error
}

// Invalidator drops cached principal state after a role change.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Recorder observes lifecycle outcomes.
type Recorder interface {
	RoleRequestOutcome(ctx context.Context, outcome string)
}
