package http

import (
	"context"
	"net/http"
	"strings"

	"identity/internal/domain"
	"identity/internal/service"
)

type ctxClaimsKey struct{}

type bearer struct {
	claims *service.Claims
	token  string
}

func bearerToken(r *http.Request) (string, bool) {
	raw := r.Header.Get("Authorization")
	if len(raw) < len("bearer ") || !strings.EqualFold(raw[:len("bearer ")], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(raw[len("bearer "):])
	return tok, tok != ""
}

// requireAccess admits requests carrying a valid, unrevoked access token.
func requireAccess(tokens service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearerToken(r)
			if !ok {
				writeError(w, r, domain.ErrInvalidToken)
				return
			}
			claims, err := tokens.VerifyType(r.Context(), tok, service.TokenTypeAccess)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxClaimsKey{}, bearer{claims: claims, token: tok})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireSuperuser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := bearerFrom(r.Context())
		if !ok || !b.claims.IsSuperuser {
			writeError(w, r, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerFrom(ctx context.Context) (bearer, bool) {
	b, ok := ctx.Value(ctxClaimsKey{}).(bearer)
	return b, ok && b.claims != nil
}
