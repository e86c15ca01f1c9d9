package rbac

import (
	"context"
	"log/slog"

	"github.com/prasetya/cms-auth/internal"
)

// Resolver answers effective-permission queries against the store. Every
// query resolves fresh; nothing is cached between calls.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// Resolve computes the effective permission set for an account: role
// permissions united with direct grants, deduplicated by name. A role
// reference pointing at a deleted role is excluded from the result and
// logged once; the account simply has fewer permissions.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (Grants, error) {
	account, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return Grants{}, err
	}
	if account == nil {
		return Grants{}, ErrUserNotFound
	}

	grants := Grants{Permissions: []string{}}
	seen := make(map[string]struct{})

	if account.RoleID != nil {
		role, err := r.store.GetRole(ctx, *account.RoleID)
		if err != nil {
			return Grants{}, err
		}
		if role == nil {
			r.logger.Warn("account references missing role",
				"user_id", userID, "role_id", *account.RoleID)
		} else {
			grants.RoleName = role.Name
			names, err := r.store.GetRolePermissionNames(ctx, role.ID)
			if err != nil {
				return Grants{}, err
			}
			for _, name := range names {
				if _, ok := seen[name]; !ok {
					seen[name] = struct{}{}
					grants.Permissions = append(grants.Permissions, name)
				}
			}
		}
	}

	direct, err := r.store.GetDirectPermissionNames(ctx, userID)
	if err != nil {
		return Grants{}, err
	}
	for _, name := range direct {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			grants.Permissions = append(grants.Permissions, name)
		}
	}

	return grants, nil
}

func (r *Resolver) HasPermission(ctx context.Context, userID int64, permission string) bool {
	grants, err := r.Resolve(ctx, userID)
	if err != nil {
		r.logger.Warn("permission check failed, denying", "error", err, "user_id", userID)
		return false
	}
	return grants.Has(permission)
}

func (r *Resolver) HasAnyPermission(ctx context.Context, userID int64, permissions []string) bool {
	grants, err := r.Resolve(ctx, userID)
	if err != nil {
		r.logger.Warn("permission check failed, denying", "error", err, "user_id", userID)
		return false
	}
	for _, p := range permissions {
		if grants.Has(p) {
			return true
		}
	}
	return false
}

func (r *Resolver) HasAllPermissions(ctx context.Context, userID int64, permissions []string) bool {
	grants, err := r.Resolve(ctx, userID)
	if err != nil {
		r.logger.Warn("permission check failed, denying", "error", err, "user_id", userID)
		return false
	}
	for _, p := range permissions {
		if !grants.Has(p) {
			return false
		}
	}
	return true
}

func (r *Resolver) HasRole(ctx context.Context, userID int64, roleName string) bool {
	grants, err := r.Resolve(ctx, userID)
	if err != nil {
		r.logger.Warn("role check failed, denying", "error", err, "user_id", userID)
		return false
	}
	return grants.RoleName == roleName
}

func (r *Resolver) HasAnyRole(ctx context.Context, userID int64, roleNames []string) bool {
	grants, err := r.Resolve(ctx, userID)
	if err != nil {
		r.logger.Warn("role check failed, denying", "error", err, "user_id", userID)
		return false
	}
	for _, name := range roleNames {
		if grants.RoleName == name {
			return true
		}
	}
	return false
}

// Authorize fails closed: a missing account, a store error or an absent
// permission all deny. CRUD callers map the returned error to 403.
func (r *Resolver) Authorize(ctx context.Context, userID int64, permission string) error {
	grants, err := r.Resolve(ctx, userID)
	if err != nil {
		r.logger.Warn("authorization resolution failed, denying",
			"error", err, "user_id", userID, "permission", permission)
		return internal.ErrPermissionDenied
	}
	if !grants.Has(permission) {
		return internal.ErrPermissionDenied
	}
	return nil
}
