package impl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"identity/internal/cache"
	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/jwtsigner"
	"identity/internal/observability/metrics"
	"identity/internal/observability/middleware"
	"identity/internal/service"

	"github.com/golang-jwt/jwt/v5"
)

const blacklistPrefix = "token_blacklist:"

// ====== Config ======

type TokenConfig struct {
	Issuer        string        // e.g. "user-service"
	Audience      string        // e.g. "microservices"
	AccessTTL     time.Duration // e.g. 30 * time.Minute
	RefreshTTL    time.Duration // e.g. 7 * 24h
	PublicBaseURL string        // used to advertise the JWKS location
}

type blacklistCache interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ====== Service ======

type TokenServiceImpl struct {
	cfg    TokenConfig
	signer jwtsigner.Signer
	cache  blacklistCache
	now    func() time.Time
}

func NewTokenService(cfg TokenConfig, signer jwtsigner.Signer, c *cache.Cache) *TokenServiceImpl {
	return &TokenServiceImpl{cfg: cfg, signer: signer, cache: c, now: time.Now}
}

func (t *TokenServiceImpl) AccessTTL() time.Duration { return t.cfg.AccessTTL }

func (t *TokenServiceImpl) IssueAccess(ctx context.Context, c service.Claims) (string, error) {
	return t.issue(ctx, c, service.TokenTypeAccess, t.cfg.AccessTTL)
}

func (t *TokenServiceImpl) IssueRefresh(ctx context.Context, c service.Claims) (string, error) {
	return t.issue(ctx, c, service.TokenTypeRefresh, t.cfg.RefreshTTL)
}

func (t *TokenServiceImpl) issue(ctx context.Context, c service.Claims, typ string, ttl time.Duration) (string, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues(typ, result).Inc()
	}()
	if c.Subject == "" {
		result = "failure"
		return "", errors.New("token subject is required")
	}
	now := t.now().UTC()
	c.Type = typ
	c.Issuer = t.cfg.Issuer
	c.Audience = jwt.ClaimStrings{t.cfg.Audience}
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := t.signer.Sign(c)
	if err != nil {
		result = "failure"
		slog.Error("sign token", append([]any{"type", typ, "error", err}, middleware.LogAttrs(ctx)...)...)
		return "", err
	}
	return signed, nil
}

func (t *TokenServiceImpl) Verify(ctx context.Context, token string) (*service.Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	// revocation is checked before any cryptographic work
	revoked, err := t.IsBlacklisted(ctx, token)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, domain.ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{t.signer.Algorithm()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithAudience(t.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	var claims service.Claims
	parsed, err := parser.ParseWithClaims(token, &claims, t.signer.VerifyKey)
	if err != nil || !parsed.Valid {
		slog.Debug("token rejected", append([]any{"error", err}, middleware.LogAttrs(ctx)...)...)
		return nil, domain.ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, domain.ErrInvalidToken
	}
	return &claims, nil
}

func (t *TokenServiceImpl) VerifyType(ctx context.Context, token, typ string) (*service.Claims, error) {
	claims, err := t.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

func blacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return blacklistPrefix + hex.EncodeToString(sum[:])
}

func (t *TokenServiceImpl) Blacklist(ctx context.Context, token string, expiresAt *time.Time) error {
	result := "success"
	defer func() {
		metrics.BlacklistOpsTotal.WithLabelValues("add", result).Inc()
	}()
	if strings.TrimSpace(token) == "" {
		result = "invalid"
		return domain.ErrInvalidToken
	}
	now := t.now().UTC()
	exp := now.Add(t.cfg.AccessTTL)
	if expiresAt != nil {
		exp = expiresAt.UTC()
	}
	remaining := exp.Sub(now)
	if remaining <= 0 {
		result = "expired"
		return domain.ErrTokenExpired
	}
	// rounded up to whole seconds
	ttl := time.Duration(math.Ceil(remaining.Seconds())) * time.Second

	entry := domain.BlacklistEntry{AddedAt: now, ExpiresAt: exp}
	if err := t.cache.SetJSON(ctx, blacklistKey(token), entry, ttl); err != nil {
		result = "failure"
		return err
	}
	return nil
}

func (t *TokenServiceImpl) RemoveFromBlacklist(ctx context.Context, token string) error {
	result := "success"
	defer func() {
		metrics.BlacklistOpsTotal.WithLabelValues("remove", result).Inc()
	}()
	if err := t.cache.Delete(ctx, blacklistKey(token)); err != nil {
		result = "failure"
		return err
	}
	return nil
}

func (t *TokenServiceImpl) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return t.cache.Exists(ctx, blacklistKey(token))
}

func (t *TokenServiceImpl) ListBlacklisted(ctx context.Context) ([]string, error) {
	keys, err := t.cache.Keys(ctx, blacklistPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, blacklistPrefix))
	}
	sort.Strings(out)
	return out, nil
}

func (t *TokenServiceImpl) JWKS() dto.JWKSet {
	set := dto.JWKSet{Keys: []map[string]any{}}
	if jwk, ok := t.signer.PublicJWK(); ok {
		set.Keys = append(set.Keys, jwk)
	}
	return set
}

func (t *TokenServiceImpl) JWTConfig() dto.JWTConfigResponse {
	return dto.JWTConfigResponse{
		Algorithm:              t.signer.Algorithm(),
		Issuer:                 t.cfg.Issuer,
		Audience:               t.cfg.Audience,
		KeyID:                  t.signer.KeyID(),
		JWKSURL:                strings.TrimRight(t.cfg.PublicBaseURL, "/") + "/.well-known/jwks.json",
		TokenExpireMinutes:     int64(t.cfg.AccessTTL / time.Minute),
		RefreshTokenExpireDays: int64(t.cfg.RefreshTTL / (24 * time.Hour)),
	}
}
