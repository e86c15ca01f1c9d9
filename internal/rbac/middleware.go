package rbac

import (
	"log/slog"
	"net/http"

	"github.com/prasetya/cms-auth/internal"
)

// Authorization provides route middleware for permission checks. Require*
// variants trust the permission set already attached to the request context
// (the token snapshot or its refresh); the Fresh variants re-resolve from the
// store on every request for operations where staleness is unacceptable.
type Authorization struct {
	resolver *Resolver
	logger   *slog.Logger
}

func NewAuthorization(resolver *Resolver, logger *slog.Logger) *Authorization {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorization{resolver: resolver, logger: logger}
}

func (a *Authorization) Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := internal.UserFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !user.HasPermission(permission) {
				a.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", user.ID,
					"required_permission", permission,
					"user_permissions", user.Permissions)
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authorization) RequireAny(permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := internal.UserFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !user.HasAnyPermission(permissions) {
				a.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", user.ID,
					"required_permissions", permissions,
					"user_permissions", user.Permissions)
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authorization) RequireAdmin() func(http.Handler) http.Handler {
	return a.Require("admin")
}

// RequireFresh re-resolves the permission set from the store instead of
// trusting the token snapshot. Use for authorization-sensitive mutations
// where a mid-session revocation must take effect immediately.
func (a *Authorization) RequireFresh(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := internal.UserFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := a.resolver.Authorize(r.Context(), user.ID, permission); err != nil {
				a.logger.WarnContext(r.Context(), "access denied on fresh check",
					"user_id", user.ID,
					"required_permission", permission)
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
