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

// Package guard gates actions and pages on the principal's permissions.
package guard

import (
	"errors"
	"net/http"

	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/session"
)

// ErrPermissionDenied is raised when a locked action is used.
var ErrPermissionDenied = errors.New("permission denied")

// Outcome is how a protected action presents itself.
type Outcome int

const (
	// Render shows the action.
	Render Outcome = iota
	// Fallback shows the caller-supplied fallback, or nothing.
	Fallback
	// Locked shows a disabled control that reports ErrPermissionDenied on use.
	Locked
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Fallback:
		return "fallback"
	case Locked:
		return "locked"
	}
	return "unknown"
}

// Action describes a permission-gated affordance.
type Action struct {
	Permission  string
	Permissions []string
	RequireAll  bool
	ShowLock    bool
}

func (a Action) tokens() []string {
	if a.Permission == "" {
		return a.Permissions
	}
	return append([]string{a.Permission}, a.Permissions...)
}

// Allowed reports whether p passes the action's check. An action without
// tokens only requires a principal.
func (a Action) Allowed(p *authz.Principal) bool {
	if p == nil {
		return false
	}
	tokens := a.tokens()
	if len(tokens) == 0 {
		return true
	}
	if a.RequireAll {
		return p.HasAllPermissions(tokens...)
	}
	return p.HasAnyPermission(tokens...)
}

// Evaluate decides how the action renders for p.
func (a Action) Evaluate(p *authz.Principal) Outcome {
	switch {
	case a.Allowed(p):
		return Render
	case a.ShowLock:
		return Locked
	default:
		return Fallback
	}
}

// Invoke reports ErrPermissionDenied when p may not use the action.
func (a Action) Invoke(p *authz.Principal) error {
	if !a.Allowed(p) {
		return ErrPermissionDenied
	}
	return nil
}

// Page gates a whole page. The principal needs at least one of the listed
// permissions or roles. Empty lists admit any authenticated principal.
type Page struct {
	RequiredPermissions []string
	RequiredRoles       []string
}

// Allows reports whether p may open the page.
func (pg Page) Allows(p *authz.Principal) bool {
	if p == nil {
		return false
	}
	if len(pg.RequiredPermissions) == 0 && len(pg.RequiredRoles) == 0 {
		return true
	}
	if p.IsAdmin() || p.HasAnyPermission(pg.RequiredPermissions...) {
		return true
	}
	for _, r := range pg.RequiredRoles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

// DenyFunc writes the response for a rejected request. err is
// session.ErrAuthenticationMissing or ErrPermissionDenied.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// RequirePage rejects requests whose principal does not satisfy pg.
func RequirePage(pg Page, deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := authz.FromContext(r.Context())
			if p == nil {
				deny(w, r, session.ErrAuthenticationMissing)
				return
			}
			if !pg.Allows(p) {
				deny(w, r, ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAction rejects requests whose principal may not use a.
func RequireAction(a Action, deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := authz.FromContext(r.Context())
			if p == nil {
				deny(w, r, session.ErrAuthenticationMissing)
				return
			}
			if err := a.Invoke(p); err != nil {
				deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
