package impl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"identity/internal/domain"
	"identity/internal/jwtsigner"
	"identity/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func testClaims() service.Claims {
	u := &domain.User{
		ID:       uuid.New(),
		UserName: domain.StrPtr("alice"),
		Email:    domain.StrPtr("alice@example.com"),
		Language: "zh-CN",
		IsActive: true,
	}
	return service.ClaimsFor(u, []string{"user"})
}

func TestIssueAndVerify(t *testing.T) {
	_, c := newTestCache(t)
	ts := newTestTokens(t, c)
	ctx := context.Background()
	in := testClaims()

	access, err := ts.IssueAccess(ctx, in)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	claims, err := ts.Verify(ctx, access)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != in.Subject || claims.Username != "alice" || claims.Type != service.TokenTypeAccess {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Issuer != "user-service" || len(claims.Audience) != 1 || claims.Audience[0] != "microservices" {
		t.Fatalf("unexpected issuer/audience %q %v", claims.Issuer, claims.Audience)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 30*time.Minute {
		t.Fatalf("expected 30m lifetime, got %s", got)
	}

	refresh, err := ts.IssueRefresh(ctx, in)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := ts.VerifyType(ctx, refresh, service.TokenTypeAccess); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("refresh token must not pass as access, got %v", err)
	}
	if _, err := ts.VerifyType(ctx, refresh, service.TokenTypeRefresh); err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	_, c := newTestCache(t)
	ts := newTestTokens(t, c)
	if _, err := ts.IssueAccess(context.Background(), service.Claims{Username: "x"}); err == nil {
		t.Fatalf("expected error for missing subject")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	_, c := newTestCache(t)
	ts := newTestTokens(t, c)
	ctx := context.Background()

	ts.now = func() time.Time { return time.Now().Add(-31 * time.Minute) }
	access, err := ts.IssueAccess(ctx, testClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ts.now = time.Now
	if _, err := ts.Verify(ctx, access); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	_, c := newTestCache(t)
	ts := newTestTokens(t, c)
	ctx := context.Background()

	other := newTestTokens(t, c)
	foreign, err := other.IssueAccess(ctx, testClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	hmac, err := jwtsigner.NewHMAC("s3cret", "hs")
	if err != nil {
		t.Fatalf("hmac: %v", err)
	}
	claims := testClaims()
	claims.Type = service.TokenTypeAccess
	claims.Issuer = "user-service"
	claims.Audience = jwt.ClaimStrings{"microservices"}
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Minute))
	wrongAlg, err := hmac.Sign(claims)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for name, tok := range map[string]string{
		"other key": foreign,
		"other alg": wrongAlg,
		"garbage":   "not.a.jwt",
		"empty":     "  ",
	} {
		if _, err := ts.Verify(ctx, tok); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestBlacklistRevokes(t *testing.T) {
	mr, c := newTestCache(t)
	ts := newTestTokens(t, c)
	ctx := context.Background()

	access, err := ts.IssueAccess(ctx, testClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := ts.Blacklist(ctx, access, nil); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if _, err := ts.Verify(ctx, access); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("revoked token must be rejected, got %v", err)
	}

	sum := sha256.Sum256([]byte(access))
	digest := hex.EncodeToString(sum[:])
	if got := mr.TTL(blacklistPrefix + digest); got != 30*time.Minute {
		t.Fatalf("default revocation should last the access ttl, got %s", got)
	}

	listed, err := ts.ListBlacklisted(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0] != digest {
		t.Fatalf("expected [%s], got %v", digest, listed)
	}
	for _, k := range mr.Keys() {
		if strings.Contains(k, access) {
			t.Fatalf("raw token leaked into key %s", k)
		}
	}

	if err := ts.RemoveFromBlacklist(ctx, access); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := ts.Verify(ctx, access); err != nil {
		t.Fatalf("token should verify again after removal: %v", err)
	}
}

func TestBlacklistTTLRoundsUp(t *testing.T) {
	mr, c := newTestCache(t)
	ts := newTestTokens(t, c)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return now }

	exp := now.Add(90*time.Second + 500*time.Millisecond)
	if err := ts.Blacklist(context.Background(), "opaque-token", &exp); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if got := mr.TTL(blacklistKey("opaque-token")); got != 91*time.Second {
		t.Fatalf("expected 91s ttl, got %s", got)
	}
}

func TestBlacklistAlreadyExpired(t *testing.T) {
	_, c := newTestCache(t)
	ts := newTestTokens(t, c)
	past := time.Now().Add(-time.Second)
	if err := ts.Blacklist(context.Background(), "opaque-token", &past); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	ok, err := ts.IsBlacklisted(context.Background(), "opaque-token")
	if err != nil || ok {
		t.Fatalf("expired token must not be stored: ok=%v err=%v", ok, err)
	}
}

func TestVerifyFailsClosedWhenStoreDown(t *testing.T) {
	mr, c := newTestCache(t)
	ts := newTestTokens(t, c)
	access, err := ts.IssueAccess(context.Background(), testClaims())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	mr.SetError("LOADING")
	if _, err := ts.Verify(context.Background(), access); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestJWKSAndConfig(t *testing.T) {
	_, c := newTestCache(t)
	ts := newTestTokens(t, c)

	set := ts.JWKS()
	if len(set.Keys) != 1 {
		t.Fatalf("expected one published key, got %d", len(set.Keys))
	}
	key := set.Keys[0]
	if key["kty"] != "OKP" || key["crv"] != "Ed25519" || key["kid"] != "test-key" {
		t.Fatalf("unexpected jwk %v", key)
	}

	cfg := ts.JWTConfig()
	if cfg.Algorithm != "EdDSA" || cfg.JWKSURL != "http://localhost:8081/.well-known/jwks.json" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.TokenExpireMinutes != 30 || cfg.RefreshTokenExpireDays != 7 {
		t.Fatalf("unexpected lifetimes %+v", cfg)
	}

	hmac, err := jwtsigner.NewHMAC("s3cret", "hs")
	if err != nil {
		t.Fatalf("hmac: %v", err)
	}
	sym := NewTokenService(ts.cfg, hmac, c)
	if keys := sym.JWKS().Keys; keys == nil || len(keys) != 0 {
		t.Fatalf("symmetric signer must publish an empty key set, got %v", keys)
	}
}
