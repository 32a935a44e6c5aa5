package store

import (
	"context"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleStore struct{ db *gorm.DB }

func (s *Store) Roles() *RoleStore { return &RoleStore{db: s.DB} }

// GetOrCreate returns the role named name, creating it if absent.
func (r *RoleStore) GetOrCreate(ctx context.Context, name, description string) (*domain.Role, error) {
	role := domain.Role{ID: uuid.New(), Name: name, Description: description}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&role).Error
	if err != nil {
		return nil, err
	}
	var out domain.Role
	if err := r.db.WithContext(ctx).First(&out, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RoleStore) Assign(ctx context.Context, userID, roleID uuid.UUID) error {
	link := domain.UserInRole{ID: uuid.New(), UserID: userID, RoleID: roleID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "role_id"}},
		DoNothing: true,
	}).Create(&link).Error
}

// NamesForUser returns the user's role names sorted by name.
func (r *RoleStore) NamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	names := []string{}
	err := r.db.WithContext(ctx).
		Table("roles").
		Joins("JOIN user_in_roles ON user_in_roles.role_id = roles.id").
		Where("user_in_roles.user_id = ?", userID).
		Order("roles.name").
		Pluck("roles.name", &names).Error
	return names, err
}

// Delete removes an unassigned role and its permission grants.
func (r *RoleStore) Delete(ctx context.Context, roleID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assigned int64
		if err := tx.Model(&domain.UserInRole{}).Where("role_id = ?", roleID).Count(&assigned).Error; err != nil {
			return err
		}
		if assigned > 0 {
			return domain.ErrRoleInUse
		}
		if err := tx.Where("role_id = ?", roleID).Delete(&domain.RolePermission{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", roleID).Delete(&domain.Role{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

func (r *RoleStore) Grant(ctx context.Context, roleID uuid.UUID, perm *domain.Permission) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if perm.ID == uuid.Nil {
			perm.ID = uuid.New()
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(perm).Error; err != nil {
			return err
		}
		var stored domain.Permission
		if err := tx.First(&stored, "name = ?", perm.Name).Error; err != nil {
			return err
		}
		*perm = stored
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&domain.RolePermission{RoleID: roleID, PermissionID: stored.ID}).Error
	})
}

// PermissionNamesForUser resolves permissions through every role the user holds.
func (r *RoleStore) PermissionNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	names := []string{}
	err := r.db.WithContext(ctx).
		Table("permissions").
		Distinct("permissions.name").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN user_in_roles ON user_in_roles.role_id = role_permissions.role_id").
		Where("user_in_roles.user_id = ?", userID).
		Order("permissions.name").
		Pluck("permissions.name", &names).Error
	return names, err
}
