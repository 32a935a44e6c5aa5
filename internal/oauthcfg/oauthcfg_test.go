package oauthcfg

import (
	"strings"
	"testing"

	"identity/internal/config"
	"identity/internal/domain"
)

func TestFromConfigEnablesOnlyConfiguredProviders(t *testing.T) {
	cfg := config.Config{
		GitHub:     config.OAuthClient{ClientID: "gh", ClientSecret: "s", RedirectURI: "http://cb"},
		Google:     config.OAuthClient{ClientID: "only-id"},
		OIDCIssuer: "https://issuer.example/",
		OIDC:       config.OAuthClient{ClientID: "o", ClientSecret: "s"},
	}
	reg := FromConfig(cfg)

	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].Name != domain.ProviderGitHub {
		t.Fatalf("expected only github, got %+v", enabled)
	}
	if _, ok := reg.Lookup(domain.ProviderGoogle); ok {
		t.Fatalf("google must be disabled without a secret")
	}
	gh, _ := reg.Lookup(domain.ProviderGitHub)
	if gh.AuthURL != "https://github.com/login/oauth/authorize" {
		t.Fatalf("unexpected github auth url %q", gh.AuthURL)
	}
	if !reg.IssuerAllowed("https://issuer.example") {
		t.Fatalf("issuer should match without trailing slash")
	}
	if reg.IssuerAllowed("https://evil.example") {
		t.Fatalf("unexpected issuer accepted")
	}
}

func TestLookupReturnsCopies(t *testing.T) {
	reg := New(nil, Provider{Name: domain.ProviderGitHub, Scopes: []string{"read:user"}})
	p, _ := reg.Lookup(domain.ProviderGitHub)
	p.Scopes[0] = "admin"
	p.ClientID = "changed"

	again, _ := reg.Lookup(domain.ProviderGitHub)
	if again.Scopes[0] != "read:user" || again.ClientID != "" {
		t.Fatalf("registry mutated through a lookup: %+v", again)
	}
}

func TestOAuth2ConfigCarriesRegistration(t *testing.T) {
	p := Provider{
		Name:        domain.ProviderGoogle,
		ClientID:    "id",
		RedirectURI: "http://localhost/cb",
		AuthURL:     "https://auth.example/authorize",
		TokenURL:    "https://auth.example/token",
		Scopes:      []string{"openid", "email"},
	}
	u := p.OAuth2().AuthCodeURL("st")
	for _, want := range []string{"client_id=id", "state=st", "scope=openid+email", "response_type=code"} {
		if !strings.Contains(u, want) {
			t.Fatalf("auth url %q missing %q", u, want)
		}
	}
}
