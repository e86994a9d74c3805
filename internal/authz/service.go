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

package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/opentrusty/civicguard/internal/observability/logger"
	"github.com/opentrusty/civicguard/internal/session"
)

var tracer = otel.Tracer("github.com/opentrusty/civicguard/internal/authz")

// Lookup dimensions reported when a lookup degrades.
const (
	DimensionPermissions     = "permissions"
	DimensionFunctionalRoles = "functional_roles"
)

// ProfileRepository reads profile records.
type ProfileRepository interface {
	// GetProfile returns ErrProfileNotFound when no profile exists.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// RoleRepository reads coarse role assignments.
type RoleRepository interface {
	ListUserRoles(ctx context.Context, userID string) ([]string, error)
}

// PermissionFunctions are the backend-computed permission lookups.
type PermissionFunctions interface {
	GetUserPermissions(ctx context.Context, userID string) ([]string, error)
	GetUserFunctionalRoles(ctx context.Context, userID string) ([]FunctionalRole, error)
}

// Cache stores resolved principals between requests.
type Cache interface {
	Get(ctx context.Context, userID string) (*Principal, bool)
	Set(ctx context.Context, p *Principal)
	Invalidate(ctx context.Context, userID string)
}

// DegradationRecorder observes lookups that fell back to an empty set.
type DegradationRecorder interface {
	LookupDegraded(ctx context.Context, dimension string)
}

// Service assembles principals from a session and the backend lookups.
type Service struct {
	profiles  ProfileRepository
	roles     RoleRepository
	functions PermissionFunctions
	cache     Cache
	recorder  DegradationRecorder
}

// NewService creates a principal loader. cache and recorder may be nil.
func NewService(profiles ProfileRepository, roles RoleRepository, functions PermissionFunctions, cache Cache, recorder DegradationRecorder) *Service {
	return &Service{
		profiles:  profiles,
		roles:     roles,
		functions: functions,
		cache:     cache,
		recorder:  recorder,
	}
}

// Load resolves the principal for sess.
//
// The four lookups run concurrently. A missing profile yields a principal
// with identity only. A failed role lookup fails the load. Failed permission
// and functional role lookups resolve to empty sets and are recorded in
// Principal.Degraded, so the principal sees less rather than more.
func (s *Service) Load(ctx context.Context, sess *session.Session) (*Principal, error) {
	if sess == nil || sess.UserID == "" {
		return nil, session.ErrAuthenticationMissing
	}

	if s.cache != nil {
		if p, ok := s.cache.Get(ctx, sess.UserID); ok {
			return p, nil
		}
	}

	ctx, span := tracer.Start(ctx, "authz.Load")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", sess.UserID))

	var (
		profile     *Profile
		roles       []string
		permissions []string
		functional  []FunctionalRole
		permErr     error
		funcErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.profiles.GetProfile(gctx, sess.UserID)
		if err != nil {
			if errors.Is(err, ErrProfileNotFound) {
				return nil
			}
			return fmt.Errorf("failed to load profile: %w", err)
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		r, err := s.roles.ListUserRoles(gctx, sess.UserID)
		if err != nil {
			return fmt.Errorf("failed to load roles: %w", err)
		}
		roles = r
		return nil
	})
	g.Go(func() error {
		permissions, permErr = s.functions.GetUserPermissions(gctx, sess.UserID)
		return nil
	})
	g.Go(func() error {
		functional, funcErr = s.functions.GetUserFunctionalRoles(gctx, sess.UserID)
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	p := &Principal{
		ID:              sess.UserID,
		Email:           sess.Email,
		Roles:           NewSet(roles...),
		Permissions:     NewSet(),
		FunctionalRoles: NewSet(),
	}
	if profile != nil {
		p.MunicipalityID = profile.MunicipalityID
		p.CityID = profile.CityID
		p.OrganizationID = profile.OrganizationID
		p.InstitutionID = profile.InstitutionID
		p.AreasOfExpertise = profile.AreasOfExpertise
		if p.Email == "" {
			p.Email = profile.Email
		}
	}

	if permErr != nil {
		s.degrade(ctx, p, DimensionPermissions, permErr)
	} else {
		p.Permissions = NewSet(permissions...)
	}
	if funcErr != nil {
		s.degrade(ctx, p, DimensionFunctionalRoles, funcErr)
	} else {
		names := make([]string, 0, len(functional))
		for _, fr := range functional {
			names = append(names, fr.RoleName)
		}
		p.FunctionalRoles = NewSet(names...)
	}

	if s.cache != nil && len(p.Degraded) == 0 {
		s.cache.Set(ctx, p)
	}
	return p, nil
}

// Invalidate drops any cached principal for userID.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}

func (s *Service) degrade(ctx context.Context, p *Principal, dimension string, err error) {
	p.Degraded = append(p.Degraded, dimension)
	slog.WarnContext(ctx, "principal lookup degraded to empty set",
		logger.UserID(p.ID),
		logger.Dimension(dimension),
		logger.Error(err),
	)
	if s.recorder != nil {
		s.recorder.LookupDegraded(ctx, dimension)
	}
}
