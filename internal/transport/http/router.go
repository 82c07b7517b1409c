// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services and translate domain errors; no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conforma/pkg/platform/middleware/auth"
	"conforma/pkg/platform/middleware/requesttime"
	"conforma/pkg/requestcontext"
)

// Deps carries everything the router needs.
type Deps struct {
	Logger      *slog.Logger
	Validator   *auth.Validator
	Compliance  ComplianceService
	Orgs        OrgService
	Workflows   WorkflowService
	Access      AccessService
	Assignments AssignmentsService
	Audit       AuditService
}

// NewRouter wires all endpoints. Health and metrics stay open; everything
// else sits behind bearer authentication.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestID)
	r.Use(requesttime.Middleware)
	r.Use(requestLogger(deps.Logger))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(auth.RequireAuth(deps.Validator, deps.Logger))

		newComplianceHandler(deps.Compliance, deps.Logger).Register(api)
		newOrgHandler(deps.Orgs, deps.Access, deps.Logger).Register(api)
		newWorkflowHandler(deps.Workflows, deps.Logger).Register(api)
		newAccessHandler(deps.Access, deps.Assignments, deps.Audit, deps.Logger).Register(api)
	})
	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestcontext.RequestID(r.Context()),
			)
		})
	}
}
