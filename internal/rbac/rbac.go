package rbac

import (
	"context"
	"errors"

	"github.com/prasetya/cms-auth/internal/core/datamodel/user"
)

// Grants is the resolved authorization state of an account: the role name
// (empty when the account has none) and the effective permission set, the
// deduplicated union of role permissions and direct grants.
type Grants struct {
	RoleName    string
	Permissions []string
}

func (g Grants) Has(permission string) bool {
	for _, p := range g.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// Store is the persistence surface the resolver reads from. Lookups of
// dangling references return nil rather than an error so resolution stays
// total.
type Store interface {
	GetUser(ctx context.Context, id int64) (*user.User, error)
	GetRole(ctx context.Context, id int64) (*user.Role, error)
	GetRolePermissionNames(ctx context.Context, roleID int64) ([]string, error)
	GetDirectPermissionNames(ctx context.Context, userID int64) ([]string, error)
}

// AdminStore extends Store with the mutations administrative tooling needs.
type AdminStore interface {
	Store
	DeleteRole(ctx context.Context, roleID int64) error
	DeletePermission(ctx context.Context, permissionID int64) error
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrRoleInUse    = errors.New("role is still assigned to users")
)
