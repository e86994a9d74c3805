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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/civicguard/internal/rolerequest"
)

// RoleRequestRepository implements rolerequest.Repository
type RoleRequestRepository struct {
	db *DB
}

// NewRoleRequestRepository creates a new role request repository
func NewRoleRequestRepository(db *DB) *RoleRequestRepository {
	return &RoleRequestRepository{db: db}
}

const roleRequestColumns = `id, user_id, user_email, requested_role, justification, status,
	created_at, COALESCE(review_notes, ''), COALESCE(approver_email, ''), resolved_at`

func scanRoleRequest(row pgx.Row) (*rolerequest.RoleRequest, error) {
	var req rolerequest.RoleRequest
	var status string
	err := row.Scan(
		&req.ID, &req.UserID, &req.UserEmail, &req.RequestedRole, &req.Justification, &status,
		&req.CreatedAt, &req.ReviewNotes, &req.ApproverEmail, &req.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	req.Status = rolerequest.Status(status)
	return &req, nil
}

// Create inserts a new role request
func (r *RoleRequestRepository) Create(ctx context.Context, req *rolerequest.RoleRequest) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO role_requests (
			id, user_id, user_email, requested_role, justification, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		req.ID, req.UserID, req.UserEmail, req.RequestedRole, req.Justification,
		string(req.Status), req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create role request: %w", err)
	}
	return nil
}

// Get retrieves a role request by ID
func (r *RoleRequestRepository) Get(ctx context.Context, id string) (*rolerequest.RoleRequest, error) {
	req, err := scanRoleRequest(r.db.pool.QueryRow(ctx,
		`SELECT `+roleRequestColumns+` FROM role_requests WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rolerequest.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get role request: %w", err)
	}
	return req, nil
}

// CountByEmailSince counts requests created by email at or after since
func (r *RoleRequestRepository) CountByEmailSince(ctx context.Context, email string, since time.Time) (int, error) {
	var n int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM role_requests WHERE user_email = $1 AND created_at >= $2
	`, email, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count role requests: %w", err)
	}
	return n, nil
}

// ListByStatus lists requests in status, newest first
func (r *RoleRequestRepository) ListByStatus(ctx context.Context, status rolerequest.Status) ([]*rolerequest.RoleRequest, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT `+roleRequestColumns+` FROM role_requests WHERE status = $1 ORDER BY created_at DESC, id DESC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list role requests: %w", err)
	}
	defer rows.Close()

	out := make([]*rolerequest.RoleRequest, 0)
	for rows.Next() {
		req, err := scanRoleRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Resolve moves a pending request to a terminal state in a single conditional update
func (r *RoleRequestRepository) Resolve(ctx context.Context, id string, res rolerequest.Resolution) (*rolerequest.RoleRequest, error) {
	req, err := scanRoleRequest(r.db.pool.QueryRow(ctx, `
		UPDATE role_requests
		SET status = $2, review_notes = NULLIF($3, ''), approver_email = NULLIF($4, ''), resolved_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+roleRequestColumns,
		id, string(res.Status), res.ReviewNotes, res.ApproverEmail, res.ResolvedAt,
	))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve role request: %w", err)
	}
	if _, gerr := r.Get(ctx, id); gerr != nil {
		return nil, gerr
	}
	return nil, rolerequest.ErrInvalidTransition
}

// Reopen returns an approved request to pending
func (r *RoleRequestRepository) Reopen(ctx context.Context, id string) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE role_requests
		SET status = 'pending', review_notes = NULL, approver_email = NULL, resolved_at = NULL
		WHERE id = $1 AND status = 'approved'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to reopen role request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rolerequest.ErrInvalidTransition
	}
	return nil
}
