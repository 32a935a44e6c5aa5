// Package authz lets other services validate identity access tokens locally
// against the published JWKS.
package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"identity/internal/observability/middleware"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

// Principal is the verified subject of an access token.
type Principal struct {
	Subject     string
	Username    string
	Roles       []string
	IsSuperuser bool
}

type ctxPrincipalKey struct{}

// JWTValidator checks signature, expiry, issuer, audience and token type.
// It cannot see the issuer's blacklist, so a revoked token stays valid here
// until it expires.
type JWTValidator struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
}

func NewJWTValidator(ctx context.Context, jwksURL, issuer, audience string) (*JWTValidator, error) {
	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Minute * 15,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			slog.Warn("jwks refresh failed", "url", jwksURL, "error", err)
		},
	}
	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, err
	}
	return &JWTValidator{jwks: jwks, issuer: issuer, audience: audience}, nil
}

// Close stops the background refresh.
func (j *JWTValidator) Close() { j.jwks.EndBackground() }

func (j *JWTValidator) Validate(raw string) (*Principal, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(raw, claims, j.jwks.Keyfunc)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return nil, ErrInvalidToken
	}
	if !claims.VerifyIssuer(j.issuer, true) {
		return nil, ErrInvalidToken
	}
	if j.audience != "" && !claims.VerifyAudience(j.audience, true) {
		return nil, ErrInvalidToken
	}
	if typ, _ := claims["type"].(string); typ != "access" {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidToken
	}

	p := &Principal{Subject: sub}
	p.Username, _ = claims["username"].(string)
	p.IsSuperuser, _ = claims["is_superuser"].(bool)
	if roles, ok := claims["roles"].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				p.Roles = append(p.Roles, s)
			}
		}
	}
	return p, nil
}

func (j *JWTValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attrs := middleware.LogAttrs(r.Context())
		raw := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(raw), "bearer ") {
			http.Error(w, ErrMissingBearer.Error(), http.StatusUnauthorized)
			slog.Warn("authz missing bearer", attrs...)
			return
		}
		p, err := j.Validate(strings.TrimSpace(raw[len("Bearer "):]))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			slog.Warn("authz invalid token", attrs...)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey{}).(*Principal)
	return p, ok && p != nil
}

// SubjectFrom returns the authenticated user id.
func SubjectFrom(ctx context.Context) (string, bool) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return "", false
	}
	return p.Subject, true
}
