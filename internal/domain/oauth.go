package domain

import "time"

// Provider names an external identity provider.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGoogle Provider = "google"
	ProviderWeChat Provider = "wechat"
	ProviderAlipay Provider = "alipay"
	ProviderOIDC   Provider = "oidc"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderGitHub, ProviderGoogle, ProviderWeChat, ProviderAlipay, ProviderOIDC:
		return true
	}
	return false
}

// ProviderUser is a provider profile normalized to the fields we link on.
type ProviderUser struct {
	ID     string
	Login  string
	Name   string
	Email  string
	Avatar string
}

// OAuthState is the value stored under a one-time state token.
type OAuthState struct {
	Provider  Provider  `json:"provider"`
	Issuer    string    `json:"issuer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Used      bool      `json:"used"`
}
