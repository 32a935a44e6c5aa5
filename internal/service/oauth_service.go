package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"

	"github.com/google/uuid"
)

type OAuthService interface {
	Providers(ctx context.Context) ([]dto.ProviderInfo, error)
	// AuthorizeURL mints a state and returns the provider redirect URL.
	AuthorizeURL(ctx context.Context, p domain.Provider) (authURL, state string, err error)
	GenerateState(ctx context.Context, p domain.Provider, issuer string) (string, error)
	// ConsumeState succeeds exactly once per generated state.
	ConsumeState(ctx context.Context, state string) (*domain.OAuthState, error)

	Login(ctx context.Context, p domain.Provider, code, state, ip string) (*dto.LoginResponse, error)
	UpsertUser(ctx context.Context, p domain.Provider, info *domain.ProviderUser) (*domain.User, error)
	Bind(ctx context.Context, userID uuid.UUID, p domain.Provider, r dto.OAuthBindRequest) (*dto.OAuthBindResponse, error)
	Unbind(ctx context.Context, userID uuid.UUID, p domain.Provider) error

	DiscoverOIDC(ctx context.Context, issuer string) (*dto.OIDCConfiguration, error)
	OIDCAuthorizeURL(ctx context.Context, issuer string) (*dto.OIDCAuthorizeResponse, error)
	LoginOIDC(ctx context.Context, issuer, code, state, ip string) (*dto.LoginResponse, error)
}
