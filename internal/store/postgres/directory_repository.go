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

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/rolerequest"
)

// ProfileRepository implements authz.ProfileRepository
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetProfile retrieves a profile by user ID
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*authz.Profile, error) {
	var p authz.Profile
	err := r.db.pool.QueryRow(ctx, `
		SELECT user_id, email, full_name,
			COALESCE(municipality_id, ''), COALESCE(city_id, ''),
			COALESCE(organization_id, ''), COALESCE(institution_id, ''),
			areas_of_expertise
		FROM profiles
		WHERE user_id = $1
	`, userID).Scan(
		&p.UserID, &p.Email, &p.FullName,
		&p.MunicipalityID, &p.CityID,
		&p.OrganizationID, &p.InstitutionID,
		&p.AreasOfExpertise,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authz.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// UserRoleRepository implements authz.RoleRepository and rolerequest.RoleGranter
type UserRoleRepository struct {
	db *DB
}

// NewUserRoleRepository creates a new user role repository
func NewUserRoleRepository(db *DB) *UserRoleRepository {
	return &UserRoleRepository{db: db}
}

// ListUserRoles lists the coarse roles held by a user
func (r *UserRoleRepository) ListUserRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan user roles: %w", err)
	}
	return roles, nil
}

// GrantRole inserts the role and applies any scope attributes to the profile
// in one transaction.
func (r *UserRoleRepository) GrantRole(ctx context.Context, userID string, a rolerequest.Assignment) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
			ON CONFLICT (user_id, role) DO NOTHING
		`, userID, a.Role); err != nil {
			return fmt.Errorf("failed to grant role: %w", err)
		}

		if a.MunicipalityID == "" && a.OrganizationID == "" && a.InstitutionID == "" {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			UPDATE profiles SET
				municipality_id = COALESCE(NULLIF($2, ''), municipality_id),
				organization_id = COALESCE(NULLIF($3, ''), organization_id),
				institution_id  = COALESCE(NULLIF($4, ''), institution_id),
				updated_at = NOW()
			WHERE user_id = $1
		`, userID, a.MunicipalityID, a.OrganizationID, a.InstitutionID); err != nil {
			return fmt.Errorf("failed to update profile scope: %w", err)
		}
		return nil
	})
}

// PermissionFunctions implements authz.PermissionFunctions on the
// get_user_permissions and get_user_functional_roles SQL functions
type PermissionFunctions struct {
	db *DB
}

// NewPermissionFunctions creates the permission function caller
func NewPermissionFunctions(db *DB) *PermissionFunctions {
	return &PermissionFunctions{db: db}
}

// GetUserPermissions returns the permission tokens computed for a user
func (f *PermissionFunctions) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := f.db.pool.Query(ctx, `SELECT permission FROM get_user_permissions($1)`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to call get_user_permissions: %w", err)
	}
	perms, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan permissions: %w", err)
	}
	return perms, nil
}

// GetUserFunctionalRoles returns the functional roles computed for a user
func (f *PermissionFunctions) GetUserFunctionalRoles(ctx context.Context, userID string) ([]authz.FunctionalRole, error) {
	rows, err := f.db.pool.Query(ctx, `SELECT role_name FROM get_user_functional_roles($1)`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to call get_user_functional_roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, pgx.RowToStructByPos[authz.FunctionalRole])
	if err != nil {
		return nil, fmt.Errorf("failed to scan functional roles: %w", err)
	}
	return roles, nil
}
