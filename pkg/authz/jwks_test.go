package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"identity/internal/jwtsigner"
	"identity/internal/service"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

func newJWKSServer(t *testing.T, signer jwtsigner.Signer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwk, _ := signer.PublicJWK()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []any{jwk}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mint(t *testing.T, signer jwtsigner.Signer, typ, issuer string, exp time.Time) string {
	t.Helper()
	c := service.Claims{
		Username:    "alice",
		Roles:       []string{"user", "admin"},
		IsSuperuser: true,
		Type:        typ,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   "8d0f0e52-1111-4c5e-9a55-1d2b3c4d5e6f",
			Issuer:    issuer,
			Audience:  jwtv5.ClaimStrings{"microservices"},
			IssuedAt:  jwtv5.NewNumericDate(time.Now()),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}
	tok, err := signer.Sign(c)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func newValidator(t *testing.T, signer jwtsigner.Signer) *JWTValidator {
	t.Helper()
	srv := newJWKSServer(t, signer)
	v, err := NewJWTValidator(context.Background(), srv.URL, "user-service", "microservices")
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	t.Cleanup(v.Close)
	return v
}

func TestValidateAccessToken(t *testing.T) {
	signer, err := jwtsigner.NewEd25519FromBase64("", "k1")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	v := newValidator(t, signer)

	p, err := v.Validate(mint(t, signer, "access", "user-service", time.Now().Add(time.Minute)))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.Username != "alice" || len(p.Roles) != 2 || !p.IsSuperuser {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestValidateRejections(t *testing.T) {
	signer, err := jwtsigner.NewEd25519FromBase64("", "k1")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	other, err := jwtsigner.NewEd25519FromBase64("", "k1")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	v := newValidator(t, signer)
	live := time.Now().Add(time.Minute)

	tests := map[string]string{
		"refresh type": mint(t, signer, "refresh", "user-service", live),
		"wrong issuer": mint(t, signer, "access", "someone-else", live),
		"expired":      mint(t, signer, "access", "user-service", time.Now().Add(-time.Minute)),
		"foreign key":  mint(t, other, "access", "user-service", live),
		"not a jwt":    "abc.def.ghi",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Validate(tok); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	signer, err := jwtsigner.NewEd25519FromBase64("", "k1")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	v := newValidator(t, signer)
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, ok := SubjectFrom(r.Context())
		if !ok {
			t.Errorf("no subject in context")
		}
		_, _ = w.Write([]byte(sub))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, signer, "access", "user-service", time.Now().Add(time.Minute)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "8d0f0e52-1111-4c5e-9a55-1d2b3c4d5e6f" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}
