package domain

import (
	"strings"
	"time"
)

type User struct {
	ID                 UserID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserName           *string    `gorm:"type:varchar(50);uniqueIndex:ux_users_user_name" json:"user_name"`
	Email              *string    `gorm:"type:varchar(100);uniqueIndex:ux_users_email" json:"email"`
	Phone              *string    `gorm:"type:varchar(20);uniqueIndex:ux_users_phone" json:"phone"`
	PasswordHash       *string    `gorm:"type:varchar(255)" json:"-"`
	FullName           *string    `gorm:"column:user_full_name;type:varchar(100)" json:"user_full_name"`
	Avatar             *string    `gorm:"type:varchar(500)" json:"avatar"`
	Language           string     `gorm:"type:varchar(10);not null;default:'zh-CN'" json:"language"`
	IsActive           bool       `gorm:"not null" json:"is_active"`
	IsSuperuser        bool       `gorm:"not null;default:false" json:"is_superuser"`
	EmailVerified      bool       `gorm:"not null;default:false" json:"email_verified"`
	PhoneVerified      bool       `gorm:"not null;default:false" json:"phone_verified"`
	RegistrationMethod string     `gorm:"type:varchar(20);not null;default:'password'" json:"registration_method"`
	GitHubID           *string    `gorm:"column:github_id;type:varchar(100);uniqueIndex:ux_users_github_id" json:"github_id"`
	GoogleID           *string    `gorm:"column:google_id;type:varchar(100);uniqueIndex:ux_users_google_id" json:"google_id"`
	WeChatID           *string    `gorm:"column:wechat_id;type:varchar(100);uniqueIndex:ux_users_wechat_id" json:"wechat_id"`
	AlipayID           *string    `gorm:"column:alipay_id;type:varchar(100);uniqueIndex:ux_users_alipay_id" json:"alipay_id"`
	OIDCID             *string    `gorm:"column:oidc_id;type:varchar(255);uniqueIndex:ux_users_oidc_id" json:"oidc_id"`
	LastLoginAt        *time.Time `json:"last_login_at"`
	LastLoginIP        *string    `gorm:"type:varchar(45)" json:"last_login_ip"`
	CreatedAt          time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Provider returns the external id bound for provider, if any.
func (u *User) Provider(p Provider) *string {
	switch p {
	case ProviderGitHub:
		return u.GitHubID
	case ProviderGoogle:
		return u.GoogleID
	case ProviderWeChat:
		return u.WeChatID
	case ProviderAlipay:
		return u.AlipayID
	case ProviderOIDC:
		return u.OIDCID
	}
	return nil
}

// SetProvider binds (or with nil, clears) the external id for provider.
func (u *User) SetProvider(p Provider, id *string) {
	switch p {
	case ProviderGitHub:
		u.GitHubID = id
	case ProviderGoogle:
		u.GoogleID = id
	case ProviderWeChat:
		u.WeChatID = id
	case ProviderAlipay:
		u.AlipayID = id
	case ProviderOIDC:
		u.OIDCID = id
	}
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StrPtr returns nil for blank input so optional unique columns stay NULL.
func StrPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
