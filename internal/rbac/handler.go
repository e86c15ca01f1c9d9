package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prasetya/cms-auth/internal/transport"
	"github.com/prasetya/cms-auth/pkg/logger"
)

// CatalogStore lists the permission and role catalog.
type CatalogStore interface {
	ListPermissions(ctx context.Context) ([]PermissionView, error)
	ListRoles(ctx context.Context) ([]RoleView, error)
}

type PermissionView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type RoleView struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Handler serves the role/permission catalog consumed by the dashboard UI.
type Handler struct {
	*transport.BaseHandler
	store CatalogStore
}

func NewHandler(store CatalogStore) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		store:       store,
	}
}

func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.Logger.Error("failed to list permissions", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"permissions": perms})
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.Logger.Error("failed to list roles", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}
