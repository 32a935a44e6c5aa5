package store

import (
	"context"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeleteUserData removes the user and its role associations, returning the
// number of rows removed per table.
func (s *Store) DeleteUserData(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	deleted := map[string]int64{}

	err := s.WithTx(ctx, func(tx *Store) error {
		db := tx.DB.WithContext(ctx)

		del := func(label string, q *gorm.DB, model any) error {
			res := q.Delete(model)
			if res.Error != nil {
				return res.Error
			}
			deleted[label] = res.RowsAffected
			return nil
		}

		if err := del("userInRoles", db.Where("user_id = ?", userID), &domain.UserInRole{}); err != nil {
			return err
		}
		if err := del("users", db.Where("id = ?", userID), &domain.User{}); err != nil {
			return err
		}
		if deleted["users"] == 0 {
			return ErrRecordNotFound
		}
		return nil
	})

	return deleted, err
}
