package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"identity/internal/cache"
	"identity/internal/config"
	"identity/internal/jwtsigner"
	"identity/internal/notify"
	"identity/internal/oauthcfg"
	"identity/internal/observability/logging"
	"identity/internal/observability/metrics"
	impl "identity/internal/service/impl"
	"identity/internal/store"
	httpx "identity/internal/transport/http"
	"identity/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "identity",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	metrics.MustRegister("identity")

	logger.Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) DB
	gdb, err := db.OpenGorm(db.Config{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseURL,
		LogSQL: cfg.DBLogSQL,
		Logger: logger,
	})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	st := store.New(gdb)
	defer func() { _ = st.Close() }()
	if err := st.Ping(ctx); err != nil {
		logger.Error("database unreachable", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}
	if err := st.Migrate(ctx); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	// 2) Redis
	rdb := cache.NewClient(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	kv := cache.New(rdb)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := kv.Ping(pingCtx); err != nil {
		// The service starts anyway; credential operations fail closed until Redis is back.
		logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	}
	cancel()

	// 3) Signing key
	signer, err := jwtsigner.New(cfg.JWTAlgorithm, cfg.JWTSecret, cfg.JWTPrivKey, cfg.JWTKeyID)
	if err != nil {
		logger.Error("jwt signer", "error", err)
		os.Exit(1)
	}
	if cfg.JWTPrivKey == "" && signer.Algorithm() == "EdDSA" {
		logger.Warn("JWT_PRIVATE_KEY not set, using an ephemeral signing key")
	}

	// 4) Services
	var sender notify.Sender = notify.LogSender{Logger: logger}
	if cfg.NotifyWebhookURL != "" {
		sender = notify.NewWebhookSender(cfg.NotifyWebhookURL, 10*time.Second)
	}

	pw := impl.NewPasswordServiceBcrypt(cfg.BcryptCost, impl.PasswordPolicy{
		MinLength:      cfg.PasswordMinLength,
		RequireUpper:   cfg.PasswordRequireUpper,
		RequireLower:   cfg.PasswordRequireLower,
		RequireDigit:   cfg.PasswordRequireDigit,
		RequireSpecial: cfg.PasswordRequireSpecial,
	})
	ts := impl.NewTokenService(impl.TokenConfig{
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		PublicBaseURL: cfg.PublicBaseURL,
	}, signer, kv)
	vs := impl.NewVerificationService(impl.VerificationConfig{
		CodeLength:  cfg.CodeLength,
		Expiry:      cfg.CodeExpiry,
		MaxAttempts: cfg.CodeMaxAttempts,
	}, kv, sender)
	as := impl.NewAuthServiceImpl(st, pw, ts, vs)

	registry := oauthcfg.FromConfig(cfg)
	for _, p := range registry.Enabled() {
		logger.Info("oauth provider enabled", "provider", p.Name)
	}
	oauthCfg := impl.DefaultOAuthConfig()
	providerHTTP := &http.Client{Timeout: 15 * time.Second}
	oas := impl.NewOAuthService(oauthCfg, registry, kv, st, as, pw, providerHTTP)


	// 5) HTTP router
	mux := httpx.NewRouter(httpx.Config{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPM:   cfg.RateLimitRPM,
		TrustProxy:     cfg.TrustProxy,
		RequestTimeout: requestTimeout(oauthCfg, providerHTTP.Timeout),
	}, as, vs, ts, oas)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	slog.Info("identity service listening", "addr", srv.Addr, "issuer", cfg.Issuer, "alg", signer.Algorithm())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

// requestTimeout leaves room for an OAuth callback, which runs the code
// exchange and then one profile fetch.
func requestTimeout(oauth impl.OAuthConfig, profileFetch time.Duration) time.Duration {
	return max(30*time.Second, oauth.WorstCaseExchange()+profileFetch)
}
