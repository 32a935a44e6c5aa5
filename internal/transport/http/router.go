package http

import (
	"net/http"
	"time"

	"identity/internal/httpx"
	"identity/internal/observability/middleware"
	"identity/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	CORSOrigins    []string
	RateLimitRPM   int
	TrustProxy     bool
	RequestTimeout time.Duration
}

func NewRouter(cfg Config, auth service.AuthService, codes service.VerificationService, tokens service.TokenService, oauth service.OAuthService) http.Handler {
	h := &handler{auth: auth, codes: codes, tokens: tokens, oauth: oauth, trustProxy: cfg.TrustProxy}
	authed := requireAccess(tokens)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	if cfg.RateLimitRPM > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitRPM, time.Minute))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   originsOrAll(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "X-Trace-Id"},
		AllowCredentials: len(cfg.CORSOrigins) > 0,
		MaxAge:           300,
	}))
	r.Use(middleware.WithRequestAndTrace)
	r.Use(httpx.LogRequests)
	r.Use(middleware.WithMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// interop
	r.Get("/.well-known/jwks.json", h.jwks)
	r.Get("/jwt-config", h.jwtConfig)
	r.With(authed, requireSuperuser).Get("/blacklist", h.blacklist)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/login/password", h.loginPassword)
		r.Post("/login/sms", h.loginSMS)
		r.Post("/login/email", h.loginEmail)
		r.Post("/refresh", h.refresh)
		r.Post("/send-verification-code", h.sendCode)

		r.Post("/register/password", h.registerPassword)
		r.Post("/register/sms", h.registerSMS)
		r.Post("/register/email", h.registerEmail)

		r.Route("/oauth", func(r chi.Router) {
			r.Get("/providers", h.providers)
			r.Get("/{provider}/authorize", h.authorize)
			r.Get("/{provider}/callback", h.callback)
			r.Post("/{provider}/callback", h.callback)
			r.With(authed).Post("/{provider}/bind", h.bind)
			r.With(authed).Delete("/{provider}/unbind", h.unbind)
		})
		r.Route("/oidc", func(r chi.Router) {
			r.Get("/authorize", h.oidcAuthorize)
			r.Get("/callback", h.oidcCallback)
			r.Post("/callback", h.oidcCallback)
			r.Get("/discover", h.oidcDiscover)
			r.Get("/discover/*", h.oidcDiscover)
		})

		r.With(authed).Post("/logout", h.logout)
		r.With(authed).Get("/me", h.me)
	})

	return r
}

func originsOrAll(in []string) []string {
	if len(in) == 0 {
		return []string{"*"}
	}
	return in
}
