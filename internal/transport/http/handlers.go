// @title CivicGuard API
// @version 1.0.0
// @description Authorization core for municipal innovation workflows
//
// @BasePath /api/v1
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentrusty/civicguard/internal/audit"
	"github.com/opentrusty/civicguard/internal/authz"
	"github.com/opentrusty/civicguard/internal/entity"
	"github.com/opentrusty/civicguard/internal/fieldsec"
	"github.com/opentrusty/civicguard/internal/guard"
	"github.com/opentrusty/civicguard/internal/observability/logger"
	"github.com/opentrusty/civicguard/internal/rls"
	"github.com/opentrusty/civicguard/internal/rolerequest"
	"github.com/opentrusty/civicguard/internal/session"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	verifier    session.Verifier
	principals  *authz.Service
	engine      *rls.Engine
	reader      *rls.Reader
	fields      *fieldsec.Enforcer
	requests    *rolerequest.Service
	auditLogger audit.Logger
	cfg         RouterConfig
}

// RouterConfig holds the transport knobs taken from configuration.
type RouterConfig struct {
	RequestTimeout time.Duration
	SubmitPerUser  int
	SubmitWindow   time.Duration
	MetricsHandler http.Handler
}

// NewHandler creates a new HTTP handler
func NewHandler(
	verifier session.Verifier,
	principals *authz.Service,
	engine *rls.Engine,
	reader *rls.Reader,
	fields *fieldsec.Enforcer,
	requests *rolerequest.Service,
	auditLogger audit.Logger,
	cfg RouterConfig,
) *Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Handler{
		verifier:    verifier,
		principals:  principals,
		engine:      engine,
		reader:      reader,
		fields:      fields,
		requests:    requests,
		auditLogger: auditLogger,
		cfg:         cfg,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if rateLimiter != nil {
		r.Use(RateLimitMiddleware(rateLimiter))
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.cfg.RequestTimeout))

	r.Get("/health", h.HealthCheck)
	if h.cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)
		r.Use(h.RequireAuth)

		r.Get("/me", h.GetCurrentPrincipal)
		r.Post("/me/check", h.CheckAction)

		r.Route("/entities/{type}", func(r chi.Router) {
			r.Get("/", h.ListEntities)
			r.Get("/fields", h.GetVisibleFields)
			r.Get("/policy", h.GetPolicy)
			r.Get("/{id}", h.GetEntity)
		})

		r.Route("/role-requests", func(r chi.Router) {
			r.With(SubmitLimiter(h.cfg.SubmitPerUser, h.cfg.SubmitWindow)).Post("/", h.SubmitRoleRequest)

			r.Group(func(r chi.Router) {
				r.Use(guard.RequirePage(guard.Page{RequiredRoles: []string{authz.RoleAdmin}}, h.deny))
				r.Get("/pending", h.ListPendingRoleRequests)
				r.Post("/{id}/approve", h.ApproveRoleRequest)
				r.Post("/{id}/reject", h.RejectRoleRequest)
			})

			r.Get("/{id}", h.GetRoleRequest)
		})
	})

	return r
}

// HealthCheck handles health check requests
// @Summary Health Check
// @Description Returns the health status of the service
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// respondServiceError maps domain errors onto HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *rolerequest.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, rolerequest.ErrValidation):
		respondError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, entity.ErrInvalidType):
		respondError(w, http.StatusBadRequest, "invalid entity type")
	case errors.Is(err, session.ErrAuthenticationMissing),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, session.ErrSessionInvalid):
		respondError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, guard.ErrPermissionDenied):
		h.deny(w, r, err)
	case errors.Is(err, entity.ErrNotFound):
		respondError(w, http.StatusNotFound, "entity not found")
	case errors.Is(err, rolerequest.ErrNotFound):
		respondError(w, http.StatusNotFound, "role request not found")
	case errors.Is(err, rolerequest.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, rolerequest.ErrRateLimitExceeded):
		respondError(w, http.StatusTooManyRequests, err.Error())
	default:
		slog.ErrorContext(r.Context(), "request failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// deny writes 401 or 403 and audits forbidden attempts.
func (h *Handler) deny(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrAuthenticationMissing) {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if h.auditLogger != nil {
		p := authz.FromContext(r.Context())
		e := audit.Event{
			Type:      audit.TypeAccessDenied,
			Resource:  r.Method + " " + r.URL.Path,
			IPAddress: getIPAddress(r),
			UserAgent: r.UserAgent(),
		}
		if p != nil {
			e.ActorID = p.ID
			e.ActorEmail = p.Email
		}
		h.auditLogger.Log(r.Context(), e)
	}
	respondError(w, http.StatusForbidden, "permission denied")
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func getIPAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
