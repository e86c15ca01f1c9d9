package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/prasetya/cms-auth/internal/core/datamodel/user"
	"github.com/prasetya/cms-auth/internal/rbac"
)

// Store implements rbac.AdminStore on top of gorm.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetUser(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetRole(ctx context.Context, id int64) (*user.Role, error) {
	var role user.Role
	err := s.db.WithContext(ctx).First(&role, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRolePermissionNames returns the names of a role's permissions. The join
// drops link rows whose permission no longer exists.
func (s *Store) GetRolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT p.name
		FROM permissions p
		JOIN role_permissions rp ON p.id = rp.permission_id
		WHERE rp.role_id = ?
		ORDER BY p.name`, roleID).Scan(&names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) GetDirectPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT p.name
		FROM permissions p
		JOIN user_permissions up ON p.id = up.permission_id
		WHERE up.user_id = ?
		ORDER BY p.name`, userID).Scan(&names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]rbac.PermissionView, error) {
	var perms []user.Permission
	if err := s.db.WithContext(ctx).Order("name").Find(&perms).Error; err != nil {
		return nil, err
	}
	views := make([]rbac.PermissionView, 0, len(perms))
	for _, p := range perms {
		views = append(views, rbac.PermissionView{ID: p.ID, Name: p.Name, Description: p.Description})
	}
	return views, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]rbac.RoleView, error) {
	var roles []user.Role
	if err := s.db.WithContext(ctx).Order("name").Find(&roles).Error; err != nil {
		return nil, err
	}
	views := make([]rbac.RoleView, 0, len(roles))
	for _, role := range roles {
		names, err := s.GetRolePermissionNames(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, rbac.RoleView{ID: role.ID, Name: role.Name, Permissions: names})
	}
	return views, nil
}

// DeleteRole removes a role and its permission links. It refuses while any
// account still references the role.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&user.User{}).Where("role_id = ?", roleID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return rbac.ErrRoleInUse
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&user.RolePermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user.Role{}, "id = ?", roleID).Error
	})
}

// DeletePermission removes a permission and cascades the delete through all
// role and user references.
func (s *Store) DeletePermission(ctx context.Context, permissionID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("permission_id = ?", permissionID).Delete(&user.RolePermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("permission_id = ?", permissionID).Delete(&user.UserPermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user.Permission{}, "id = ?", permissionID).Error
	})
}
