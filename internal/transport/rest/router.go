package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/prasetya/cms-auth/internal"
	"github.com/prasetya/cms-auth/internal/auth"
	"github.com/prasetya/cms-auth/internal/rbac"
	"github.com/prasetya/cms-auth/internal/transport/middleware"
	"github.com/prasetya/cms-auth/internal/transport/swagger"
)

// RegisterAllRoutes wires the auth core's HTTP surface. The route gate runs
// before everything else so path classification applies to the dashboard
// area and the auth-entry pages; the JSON API under /api/v1 uses the auth
// middleware and permission middleware instead of redirects.
func RegisterAllRoutes(router *chi.Mux, db *sql.DB, cfg *internal.Config, authHandler *auth.Handler, rbacHandler *rbac.Handler, authz *rbac.Authorization, gate *middleware.Gate, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(gate.Middleware)

	// OpenAPI spec and swagger UI at root
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	// auth-entry and dashboard pages; the gate has already classified these.
	// The CMS frontend owns the real markup, these endpoints exist so the
	// gate has something to protect when the service runs standalone.
	router.Get(cfg.Gate.LoginPath, loginPage)
	router.Get(cfg.Gate.AdminPrefix, dashboardIndex)
	router.Get(cfg.Gate.AdminPrefix+"/*", dashboardIndex)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.HealthCheckHandler)
		r.Get("/ping", healthHandler.PingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", authHandler.Login)
			sr.Post("/logout", authHandler.Logout)
		})

		// routes that require a valid session
		r.Group(func(pr chi.Router) {
			pr.Use(authHandler.AuthMiddleware)

			pr.Get("/users/me", authHandler.Me)

			// catalog endpoints for the dashboard; user management is an
			// admin concern so the check bypasses the token snapshot
			pr.Group(func(ar chi.Router) {
				ar.Use(authz.RequireFresh("manage_users"))
				ar.Get("/permissions", rbacHandler.ListPermissions)
				ar.Get("/roles", rbacHandler.ListRoles)
			})
		})
	})
}

func loginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"message":"sign in via POST /api/v1/auth/login"}`))
}

func dashboardIndex(w http.ResponseWriter, r *http.Request) {
	user, ok := internal.UserFromContext(r.Context())
	if !ok {
		// the gate redirects unauthenticated requests before this runs
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"message":"welcome back, ` + user.Name + `"}`))
}
