package config

import (
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.JWTAlgorithm != "EdDSA" {
		t.Fatalf("expected EdDSA default, got %q", cfg.JWTAlgorithm)
	}
	if cfg.AccessTTL != 30*time.Minute {
		t.Fatalf("expected 30m access ttl, got %s", cfg.AccessTTL)
	}
	if cfg.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("expected 7d refresh ttl, got %s", cfg.RefreshTTL)
	}
	if cfg.CodeLength != 6 || cfg.CodeMaxAttempts != 5 || cfg.CodeExpiry != 5*time.Minute {
		t.Fatalf("unexpected verification defaults: %+v", cfg)
	}
	if cfg.GitHub.Enabled() {
		t.Fatalf("github should be disabled without credentials")
	}
	if cfg.TrustProxy {
		t.Fatalf("forwarded headers must not be trusted by default")
	}
}

func TestParseProviderPrefixes(t *testing.T) {
	t.Setenv("GITHUB_CLIENT_ID", "gh-id")
	t.Setenv("GITHUB_CLIENT_SECRET", "gh-secret")
	t.Setenv("GITHUB_REDIRECT_URI", "http://localhost/cb")
	t.Setenv("OIDC_ISSUER", "https://issuer.example")
	t.Setenv("OIDC_CLIENT_ID", "oidc-id")
	t.Setenv("CORS_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.GitHub.Enabled() || cfg.GitHub.RedirectURI != "http://localhost/cb" {
		t.Fatalf("unexpected github config: %+v", cfg.GitHub)
	}
	if cfg.OIDC.ClientID != "oidc-id" || cfg.OIDCIssuer != "https://issuer.example" {
		t.Fatalf("unexpected oidc config: %+v %q", cfg.OIDC, cfg.OIDCIssuer)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("expected 2 cors origins, got %v", cfg.CORSOrigins)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "hs256 without secret", env: map[string]string{"JWT_ALGORITHM": "HS256"}},
		{name: "unknown algorithm", env: map[string]string{"JWT_ALGORITHM": "RS512"}},
		{name: "short code", env: map[string]string{"VERIFICATION_CODE_LENGTH": "3"}},
		{name: "bad duration", env: map[string]string{"ACCESS_TOKEN_TTL": "soon"}},
		{name: "unknown driver", env: map[string]string{"DATABASE_DRIVER": "mysql"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Parse(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseHS256WithSecret(t *testing.T) {
	t.Setenv("JWT_ALGORITHM", "HS256")
	t.Setenv("JWT_SECRET", "s3cret")
	if _, err := Parse(); err != nil {
		t.Fatalf("parse: %v", err)
	}
}
