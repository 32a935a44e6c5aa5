// Package oauthcfg holds the external identity provider table. It is built
// once from configuration and never mutated afterwards.
package oauthcfg

import (
	"slices"
	"strings"

	"identity/internal/config"
	"identity/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	WeChatAuthURL     = "https://open.weixin.qq.com/connect/qrconnect"
	WeChatTokenURL    = "https://api.weixin.qq.com/sns/oauth2/access_token"
	WeChatUserInfoURL = "https://api.weixin.qq.com/sns/userinfo"
	AlipayAuthURL     = "https://openauth.alipay.com/oauth2/publicAppAuthorize.htm"
	AlipayGatewayURL  = "https://openapi.alipay.com/gateway.do"
	GitHubUserInfoURL = "https://api.github.com/user"
	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// Provider is one OAuth2 client registration.
type Provider struct {
	Name         domain.Provider
	DisplayName  string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string

	// AuthStyle zero means x/oauth2 probes header then params.
	AuthStyle oauth2.AuthStyle
}

// OAuth2 returns a fresh x/oauth2 client config for p.
func (p Provider) OAuth2() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURI,
		Endpoint:     oauth2.Endpoint{AuthURL: p.AuthURL, TokenURL: p.TokenURL, AuthStyle: p.AuthStyle},
		Scopes:       slices.Clone(p.Scopes),
	}
}

// OIDC is the single relying-party registration for an OpenID Connect issuer.
type OIDC struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

type Registry struct {
	providers map[domain.Provider]Provider
	order     []domain.Provider
	oidc      *OIDC
}

// New builds a registry from explicit registrations. oidc may be nil.
func New(oidc *OIDC, providers ...Provider) *Registry {
	r := &Registry{providers: make(map[domain.Provider]Provider, len(providers))}
	for _, p := range providers {
		p.Scopes = slices.Clone(p.Scopes)
		if _, dup := r.providers[p.Name]; !dup {
			r.order = append(r.order, p.Name)
		}
		r.providers[p.Name] = p
	}
	if oidc != nil {
		o := *oidc
		o.Issuer = strings.TrimRight(o.Issuer, "/")
		o.Scopes = slices.Clone(o.Scopes)
		r.oidc = &o
	}
	return r
}

// FromConfig registers every provider whose client id and secret are set.
func FromConfig(cfg config.Config) *Registry {
	var ps []Provider
	if cfg.GitHub.Enabled() {
		ps = append(ps, Provider{
			Name:         domain.ProviderGitHub,
			DisplayName:  "GitHub",
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURI:  cfg.GitHub.RedirectURI,
			AuthURL:      endpoints.GitHub.AuthURL,
			TokenURL:     endpoints.GitHub.TokenURL,
			UserInfoURL:  GitHubUserInfoURL,
			Scopes:       []string{"read:user", "user:email"},
			AuthStyle:    oauth2.AuthStyleInParams,
		})
	}
	if cfg.Google.Enabled() {
		ps = append(ps, Provider{
			Name:         domain.ProviderGoogle,
			DisplayName:  "Google",
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURI:  cfg.Google.RedirectURI,
			AuthURL:      endpoints.Google.AuthURL,
			TokenURL:     endpoints.Google.TokenURL,
			UserInfoURL:  GoogleUserInfoURL,
			Scopes:       []string{"openid", "email", "profile"},
			AuthStyle:    oauth2.AuthStyleInParams,
		})
	}
	if cfg.WeChat.Enabled() {
		ps = append(ps, Provider{
			Name:         domain.ProviderWeChat,
			DisplayName:  "WeChat",
			ClientID:     cfg.WeChat.ClientID,
			ClientSecret: cfg.WeChat.ClientSecret,
			RedirectURI:  cfg.WeChat.RedirectURI,
			AuthURL:      WeChatAuthURL,
			TokenURL:     WeChatTokenURL,
			UserInfoURL:  WeChatUserInfoURL,
			Scopes:       []string{"snsapi_login"},
		})
	}
	if cfg.Alipay.Enabled() {
		ps = append(ps, Provider{
			Name:         domain.ProviderAlipay,
			DisplayName:  "Alipay",
			ClientID:     cfg.Alipay.ClientID,
			ClientSecret: cfg.Alipay.ClientSecret,
			RedirectURI:  cfg.Alipay.RedirectURI,
			AuthURL:      AlipayAuthURL,
			TokenURL:     AlipayGatewayURL,
			UserInfoURL:  AlipayGatewayURL,
			Scopes:       []string{"auth_user"},
			AuthStyle:    oauth2.AuthStyleInParams,
		})
	}

	var oidc *OIDC
	if cfg.OIDCIssuer != "" && cfg.OIDC.Enabled() {
		oidc = &OIDC{
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDC.ClientID,
			ClientSecret: cfg.OIDC.ClientSecret,
			RedirectURI:  cfg.OIDC.RedirectURI,
			Scopes:       []string{"openid", "email", "profile"},
		}
	}
	return New(oidc, ps...)
}

// Lookup returns a copy of the named registration.
func (r *Registry) Lookup(name domain.Provider) (Provider, bool) {
	p, ok := r.providers[name]
	if !ok {
		return Provider{}, false
	}
	p.Scopes = slices.Clone(p.Scopes)
	return p, true
}

// Enabled lists registrations in configuration order.
func (r *Registry) Enabled() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		p, _ := r.Lookup(name)
		out = append(out, p)
	}
	return out
}

func (r *Registry) OIDC() (OIDC, bool) {
	if r.oidc == nil {
		return OIDC{}, false
	}
	o := *r.oidc
	o.Scopes = slices.Clone(o.Scopes)
	return o, true
}

// IssuerAllowed reports whether issuer is the configured OIDC issuer.
func (r *Registry) IssuerAllowed(issuer string) bool {
	return r.oidc != nil && strings.TrimRight(issuer, "/") == r.oidc.Issuer
}
