package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/prasetya/cms-auth/internal/core/datamodel/user"
)

// cmsPermissions is the permission catalog the dashboard actions check
// against.
var cmsPermissions = []user.Permission{
	{Name: "create_post", Description: "Create blog posts"},
	{Name: "edit_post", Description: "Edit blog posts"},
	{Name: "delete_post", Description: "Delete blog posts"},
	{Name: "publish_post", Description: "Publish or unpublish blog posts"},
	{Name: "manage_pages", Description: "Create, edit and delete pages"},
	{Name: "manage_categories", Description: "Create, edit and delete categories"},
	{Name: "manage_comments", Description: "Moderate comments"},
	{Name: "manage_ads", Description: "Create, edit and delete ads"},
	{Name: "manage_users", Description: "Manage users, roles and permissions"},
	{Name: "admin", Description: "Full administrative access"},
}

var rolePermissions = map[string][]string{
	"admin": {
		"create_post", "edit_post", "delete_post", "publish_post",
		"manage_pages", "manage_categories", "manage_comments",
		"manage_ads", "manage_users", "admin",
	},
	"editor": {
		"create_post", "edit_post", "publish_post",
		"manage_categories", "manage_comments",
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with the permission catalog, default roles and sample users.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlxDB.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to init orm: %v", err)
		}

		if clearData {
			for _, table := range []string{"user_permissions", "role_permissions", "login_attempts", "users", "roles", "permissions"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		permIDs := map[string]int64{}
		for _, p := range cmsPermissions {
			var existing user.Permission
			err := db.Where("name = ?", p.Name).First(&existing).Error
			if err == gorm.ErrRecordNotFound {
				perm := p
				if err := db.Create(&perm).Error; err != nil {
					log.Fatalf("failed to seed permission %s: %v", p.Name, err)
				}
				permIDs[p.Name] = perm.ID
				continue
			}
			if err != nil {
				log.Fatalf("failed to check permission %s: %v", p.Name, err)
			}
			permIDs[p.Name] = existing.ID
		}
		fmt.Printf("Seeded %d permissions\n", len(permIDs))

		roleIDs := map[string]int64{}
		for name, perms := range rolePermissions {
			var role user.Role
			err := db.Where("name = ?", name).First(&role).Error
			if err == gorm.ErrRecordNotFound {
				role = user.Role{Name: name}
				if err := db.Create(&role).Error; err != nil {
					log.Fatalf("failed to seed role %s: %v", name, err)
				}
			} else if err != nil {
				log.Fatalf("failed to check role %s: %v", name, err)
			}
			roleIDs[name] = role.ID

			for _, permName := range perms {
				var count int64
				db.Model(&user.RolePermission{}).
					Where("role_id = ? AND permission_id = ?", role.ID, permIDs[permName]).
					Count(&count)
				if count == 0 {
					link := user.RolePermission{RoleID: role.ID, PermissionID: permIDs[permName]}
					if err := db.Create(&link).Error; err != nil {
						log.Fatalf("failed to link %s to %s: %v", permName, name, err)
					}
				}
			}
		}
		fmt.Printf("Seeded %d roles\n", len(roleIDs))

		hash, _ := bcrypt.GenerateFromPassword([]byte("password"), cfg.Security.BCryptCost)

		seedUser(db, "admin@example.com", "Admin", string(hash), roleIDs["admin"])
		seedUser(db, "editor@example.com", "Editor", string(hash), roleIDs["editor"])
	},
}

func seedUser(db *gorm.DB, email, name, hash string, roleID int64) {
	var existing user.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		fmt.Printf("user %s already exists\n", email)
		return
	}
	if err != gorm.ErrRecordNotFound {
		log.Fatalf("failed to check user %s: %v", email, err)
	}

	u := user.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		RoleID:       &roleID,
		IsActive:     true,
	}
	if err := db.Create(&u).Error; err != nil {
		log.Fatalf("failed to seed user %s: %v", email, err)
	}
	fmt.Println("Seeded user:", email)
}
