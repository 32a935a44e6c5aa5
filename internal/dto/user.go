package dto

import (
	"time"

	"identity/internal/domain"
)

type UserResponse struct {
	ID                 string     `json:"id"`
	UserName           string     `json:"user_name"`
	Email              *string    `json:"email"`
	Phone              *string    `json:"phone"`
	FullName           *string    `json:"user_full_name"`
	Avatar             *string    `json:"avatar"`
	Language           string     `json:"language"`
	IsActive           bool       `json:"is_active"`
	IsSuperuser        bool       `json:"is_superuser"`
	EmailVerified      bool       `json:"email_verified"`
	PhoneVerified      bool       `json:"phone_verified"`
	RegistrationMethod string     `json:"registration_method"`
	Roles              []string   `json:"roles"`
	GitHubID           *string    `json:"github_id"`
	GoogleID           *string    `json:"google_id"`
	WeChatID           *string    `json:"wechat_id"`
	AlipayID           *string    `json:"alipay_id"`
	LastLoginAt        *time.Time `json:"last_login_at"`
	LastLoginIP        *string    `json:"last_login_ip"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func NewUserResponse(u *domain.User, roles []string) UserResponse {
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:                 u.ID.String(),
		UserName:           domain.Deref(u.UserName),
		Email:              u.Email,
		Phone:              u.Phone,
		FullName:           u.FullName,
		Avatar:             u.Avatar,
		Language:           u.Language,
		IsActive:           u.IsActive,
		IsSuperuser:        u.IsSuperuser,
		EmailVerified:      u.EmailVerified,
		PhoneVerified:      u.PhoneVerified,
		RegistrationMethod: u.RegistrationMethod,
		Roles:              roles,
		GitHubID:           u.GitHubID,
		GoogleID:           u.GoogleID,
		WeChatID:           u.WeChatID,
		AlipayID:           u.AlipayID,
		LastLoginAt:        u.LastLoginAt,
		LastLoginIP:        u.LastLoginIP,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}
