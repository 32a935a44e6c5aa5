package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role struct {
	ID          RoleID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(50);not null;uniqueIndex:ux_roles_name" json:"name"`
	Description string    `gorm:"type:varchar(200)" json:"description"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Role) TableName() string { return "roles" }

// UserInRole carries nothing but the two foreign keys.
type UserInRole struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID UserID `gorm:"type:uuid;not null;uniqueIndex:ux_user_in_roles_pair"`
	RoleID RoleID `gorm:"type:uuid;not null;uniqueIndex:ux_user_in_roles_pair;index"`
}

func (UserInRole) TableName() string { return "user_in_roles" }

type Permission struct {
	ID          PermissionID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(100);not null;uniqueIndex:ux_permissions_name" json:"name"`
	Resource    string       `gorm:"type:varchar(100);not null" json:"resource"`
	Action      string       `gorm:"type:varchar(50);not null" json:"action"`
	Description string       `gorm:"type:varchar(200)" json:"description"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (Permission) TableName() string { return "permissions" }

type RolePermission struct {
	RoleID       RoleID       `gorm:"type:uuid;primaryKey"`
	PermissionID PermissionID `gorm:"type:uuid;primaryKey"`
}

func (RolePermission) TableName() string { return "role_permissions" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&User{}, &Role{}, &UserInRole{}, &Permission{}, &RolePermission{}}
}
