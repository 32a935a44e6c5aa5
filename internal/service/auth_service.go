package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

// CodeRegistration is a sign-up proven by a verification code sent to
// Identifier over Channel.
type CodeRegistration struct {
	Identifier string
	Channel    domain.Channel
	Code       string
	UserName   string
	FullName   string
}

type AuthService interface {
	LoginPassword(ctx context.Context, r dto.PasswordLoginRequest, ip string) (*dto.LoginResponse, error)
	LoginCode(ctx context.Context, identifier, code string, channel domain.Channel, ip string) (*dto.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.RefreshResponse, error)
	Logout(ctx context.Context, claims *Claims, token string) (*dto.LogoutResponse, error)
	// CompleteLogin is the shared success path for every login method.
	CompleteLogin(ctx context.Context, user *domain.User, method, ip string) (*dto.LoginResponse, error)

	RegisterPassword(ctx context.Context, r dto.PasswordRegisterRequest) (*dto.UserResponse, error)
	RegisterCode(ctx context.Context, r CodeRegistration) (*dto.UserResponse, error)
	CurrentUser(ctx context.Context, claims *Claims) (*dto.UserResponse, error)
}
