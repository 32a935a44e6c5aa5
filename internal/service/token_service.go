package service

import (
	"context"
	"time"

	"identity/internal/domain"
	"identity/internal/dto"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the payload of both access and refresh tokens. Subject carries
// the user id.
type Claims struct {
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	FullName    string   `json:"full_name,omitempty"`
	Language    string   `json:"language,omitempty"`
	IsSuperuser bool     `json:"is_superuser"`
	IsActive    bool     `json:"is_active"`
	Type        string   `json:"type"`
	jwt.RegisteredClaims
}

// ClaimsFor projects a user and its current roles into token claims.
func ClaimsFor(u *domain.User, roles []string) Claims {
	if roles == nil {
		roles = []string{}
	}
	return Claims{
		Username:         domain.Deref(u.UserName),
		Roles:            roles,
		Email:            domain.Deref(u.Email),
		Phone:            domain.Deref(u.Phone),
		FullName:         domain.Deref(u.FullName),
		Language:         u.Language,
		IsSuperuser:      u.IsSuperuser,
		IsActive:         u.IsActive,
		RegisteredClaims: jwt.RegisteredClaims{Subject: u.ID.String()},
	}
}

type TokenService interface {
	IssueAccess(ctx context.Context, c Claims) (string, error)
	IssueRefresh(ctx context.Context, c Claims) (string, error)
	// Verify consults the blacklist before the signature. Every rejection is
	// domain.ErrInvalidToken; store failures surface as ErrStoreUnavailable.
	Verify(ctx context.Context, token string) (*Claims, error)
	VerifyType(ctx context.Context, token, typ string) (*Claims, error)
	// Blacklist revokes token until expiresAt (nil: now + access TTL).
	Blacklist(ctx context.Context, token string, expiresAt *time.Time) error
	RemoveFromBlacklist(ctx context.Context, token string) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
	// ListBlacklisted returns SHA-256 hex digests, never raw tokens.
	ListBlacklisted(ctx context.Context) ([]string, error)
	AccessTTL() time.Duration
	JWKS() dto.JWKSet
	JWTConfig() dto.JWTConfigResponse
}
