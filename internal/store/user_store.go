package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	if usr.ID == uuid.Nil {
		usr.ID = uuid.New()
	}
	if err := u.db.WithContext(ctx).Create(usr).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (u *UserStore) first(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return u.first(ctx, "id = ?", id)
}

func (u *UserStore) GetByUserName(ctx context.Context, name string) (*domain.User, error) {
	return u.first(ctx, "user_name = ?", name)
}

func (u *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return u.first(ctx, "email = ?", email)
}

func (u *UserStore) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return u.first(ctx, "phone = ?", phone)
}

func providerColumn(p domain.Provider) (string, error) {
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q", p)
	}
	return string(p) + "_id", nil
}

func (u *UserStore) GetByProviderID(ctx context.Context, p domain.Provider, externalID string) (*domain.User, error) {
	col, err := providerColumn(p)
	if err != nil {
		return nil, err
	}
	return u.first(ctx, col+" = ?", externalID)
}

// UserNameTaken reports whether a user already holds name.
func (u *UserStore) UserNameTaken(ctx context.Context, name string) (bool, error) {
	var n int64
	err := u.db.WithContext(ctx).Model(&domain.User{}).Where("user_name = ?", name).Count(&n).Error
	return n > 0, err
}

// EmailOrPhoneTaken checks the optional unique contact columns in one query.
func (u *UserStore) EmailOrPhoneTaken(ctx context.Context, email, phone *string) (bool, error) {
	if email == nil && phone == nil {
		return false, nil
	}
	q := u.db.WithContext(ctx).Model(&domain.User{})
	switch {
	case email != nil && phone != nil:
		q = q.Where("email = ? OR phone = ?", *email, *phone)
	case email != nil:
		q = q.Where("email = ?", *email)
	default:
		q = q.Where("phone = ?", *phone)
	}
	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}

func (u *UserStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time, ip string) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_login_at": at, "last_login_ip": domain.StrPtr(ip), "updated_at": at}).Error
}

// UpdateProfile refreshes display fields; nil values leave the column untouched.
func (u *UserStore) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, avatar *string) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if fullName != nil {
		updates["user_full_name"] = *fullName
	}
	if avatar != nil {
		updates["avatar"] = *avatar
	}
	return u.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(updates).Error
}

// SetProviderID binds externalID to the user, or clears the column when nil.
func (u *UserStore) SetProviderID(ctx context.Context, id uuid.UUID, p domain.Provider, externalID *string) error {
	col, err := providerColumn(p)
	if err != nil {
		return err
	}
	err = u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{col: externalID, "updated_at": time.Now().UTC()}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (u *UserStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

func (u *UserStore) SetSuperuser(ctx context.Context, id uuid.UUID, superuser bool) error {
	return u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Update("is_superuser", superuser).Error
}
