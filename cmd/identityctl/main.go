package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"identity/internal/cache"
	"identity/internal/config"
	"identity/internal/jwtsigner"
	impl "identity/internal/service/impl"
	"identity/internal/store"
	"identity/pkg/authz"
	"identity/pkg/db"

	"github.com/google/uuid"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "genkey":
		err = runGenKey(args, os.Stdout)
	case "hashpw":
		err = runHashPassword(args, os.Stdin, os.Stdout)
	case "genpw":
		err = runGenPassword(args, os.Stdout)
	case "migrate":
		err = runMigrate(args)
	case "deluser":
		err = runDeleteUser(args, os.Stdout)
	case "blacklist":
		err = runBlacklist(args, os.Stdout)
	case "verify":
		err = runVerify(args, os.Stdout)
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  genkey     Generate an Ed25519 signing key and its public JWK")
	fmt.Fprintln(os.Stderr, "  hashpw     Hash a password with bcrypt (reads stdin when -password is empty)")
	fmt.Fprintln(os.Stderr, "  genpw      Generate a random password that satisfies the policy")
	fmt.Fprintln(os.Stderr, "  migrate    Create or update the database schema")
	fmt.Fprintln(os.Stderr, "  deluser    Delete a user and its role assignments")
	fmt.Fprintln(os.Stderr, "  blacklist  List revoked token digests (-remove <token> un-revokes one first)")
	fmt.Fprintln(os.Stderr, "  verify     Validate an access token against a JWKS endpoint")
	os.Exit(2)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// ====== genkey ======

func runGenKey(args []string, out io.Writer) error {
	fs := newFlagSet("genkey")
	kid := fs.String("kid", getenv("JWT_KEY_ID", "user-service-key-1"), "key id published in the JWKS")
	if err := fs.Parse(args); err != nil {
		return err
	}

	priv, err := jwtsigner.GenerateEd25519Base64()
	if err != nil {
		return err
	}
	signer, err := jwtsigner.NewEd25519FromBase64(priv, *kid)
	if err != nil {
		return err
	}
	jwk, _ := signer.PublicJWK()

	return printJSON(out, struct {
		PrivateKey string         `json:"JWT_PRIVATE_KEY"`
		KeyID      string         `json:"JWT_KEY_ID"`
		PublicJWK  map[string]any `json:"public_jwk"`
	}{priv, *kid, jwk})
}

// ====== hashpw / genpw ======

func passwordService(cost int) *impl.PasswordServiceImpl {
	return impl.NewPasswordServiceBcrypt(cost, impl.PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	})
}

func runHashPassword(args []string, in io.Reader, out io.Writer) error {
	fs := newFlagSet("hashpw")
	password := fs.String("password", "", "plaintext password")
	cost := fs.Int("cost", 12, "bcrypt cost")
	check := fs.Bool("check", false, "reject passwords that fail the strength policy")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw := *password
	if pw == "" {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		pw = strings.TrimRight(line, "\r\n")
	}
	if pw == "" {
		return errors.New("password is required")
	}

	svc := passwordService(*cost)
	if *check {
		if err := svc.CheckStrength(pw); err != nil {
			return err
		}
	}
	hash, err := svc.Hash(pw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func runGenPassword(args []string, out io.Writer) error {
	fs := newFlagSet("genpw")
	length := fs.Int("length", 16, "password length")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pw, err := passwordService(0).GenerateRandom(*length)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, pw)
	return err
}

// ====== migrate ======

func runMigrate(args []string) error {
	fs := newFlagSet("migrate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "schema up to date")
	return nil
}

// ====== deluser ======

func openStore() (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	gdb, err := db.OpenGorm(db.Config{Driver: cfg.DatabaseDriver, DSN: cfg.DatabaseURL, LogSQL: cfg.DBLogSQL})
	if err != nil {
		return nil, err
	}
	return store.New(gdb), nil
}

func runDeleteUser(args []string, out io.Writer) error {
	fs := newFlagSet("deluser")
	id := fs.String("id", "", "user UUID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	userID, err := uuid.Parse(strings.TrimSpace(*id))
	if err != nil {
		return fmt.Errorf("invalid -id: %w", err)
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	deleted, err := st.DeleteUserData(ctx, userID)
	if err != nil {
		return err
	}
	return printJSON(out, struct {
		UserID  string           `json:"user_id"`
		Deleted map[string]int64 `json:"deleted"`
	}{userID.String(), deleted})
}

// ====== blacklist ======

type blacklistAdmin interface {
	ListBlacklisted(ctx context.Context) ([]string, error)
	RemoveFromBlacklist(ctx context.Context, token string) error
}

func runBlacklist(args []string, out io.Writer) error {
	fs := newFlagSet("blacklist")
	remove := fs.String("remove", "", "token to take off the blacklist before listing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	signer, err := jwtsigner.New(cfg.JWTAlgorithm, cfg.JWTSecret, cfg.JWTPrivKey, cfg.JWTKeyID)
	if err != nil {
		return err
	}
	rdb := cache.NewClient(cache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() { _ = rdb.Close() }()

	ts := impl.NewTokenService(impl.TokenConfig{Issuer: cfg.Issuer, Audience: cfg.Audience}, signer, cache.New(rdb))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return blacklistCmd(ctx, ts, strings.TrimSpace(*remove), out)
}

func blacklistCmd(ctx context.Context, ts blacklistAdmin, remove string, out io.Writer) error {
	if remove != "" {
		if err := ts.RemoveFromBlacklist(ctx, remove); err != nil {
			return err
		}
	}
	digests, err := ts.ListBlacklisted(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, struct {
		Count   int      `json:"count"`
		Digests []string `json:"digests"`
	}{len(digests), digests})
}

// ====== verify ======

func runVerify(args []string, out io.Writer) error {
	fs := newFlagSet("verify")
	baseURL := fs.String("base-url", getenv("IDENTITYCTL_BASE_URL", "http://localhost:8081"), "identity service base URL")
	issuer := fs.String("issuer", getenv("JWT_ISSUER", "user-service"), "expected issuer")
	audience := fs.String("audience", getenv("JWT_AUDIENCE", "microservices"), "expected audience")
	token := fs.String("token", "", "access token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *token == "" {
		return errors.New("token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	jwksURL := strings.TrimRight(*baseURL, "/") + "/.well-known/jwks.json"
	v, err := authz.NewJWTValidator(ctx, jwksURL, *issuer, *audience)
	if err != nil {
		return err
	}
	defer v.Close()

	p, err := v.Validate(*token)
	if err != nil {
		return err
	}
	return printJSON(out, p)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
