package impl

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"identity/internal/cache"
	"identity/internal/domain"
	"identity/internal/jwtsigner"
	"identity/internal/notify"
	"identity/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *cache.Cache) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, cache.New(client)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	st := store.New(db)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return st
}

func newTestPasswords() *PasswordServiceImpl {
	return NewPasswordServiceBcrypt(bcrypt.MinCost, PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	})
}

func newTestTokens(t *testing.T, c *cache.Cache) *TokenServiceImpl {
	t.Helper()
	signer, err := jwtsigner.NewEd25519FromBase64("", "test-key")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return NewTokenService(TokenConfig{
		Issuer:        "user-service",
		Audience:      "microservices",
		AccessTTL:     30 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		PublicBaseURL: "http://localhost:8081",
	}, signer, c)
}

// recordingSender captures dispatched codes and can be told to fail.
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (r *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingSender) last(t *testing.T) notify.Message {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		t.Fatalf("no code was sent")
	}
	return r.sent[len(r.sent)-1]
}

func newTestCodes(c *cache.Cache, sender notify.Sender) *VerificationServiceImpl {
	return NewVerificationService(VerificationConfig{
		CodeLength:  6,
		Expiry:      5 * time.Minute,
		MaxAttempts: 5,
	}, c, sender)
}

type authFixture struct {
	mr        *miniredis.Miniredis
	cache     *cache.Cache
	store     *store.Store
	passwords *PasswordServiceImpl
	tokens    *TokenServiceImpl
	codes     *VerificationServiceImpl
	sender    *recordingSender
	auth      *AuthServiceImpl
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	mr, c := newTestCache(t)
	st := newTestStore(t)
	f := &authFixture{mr: mr, cache: c, store: st, sender: &recordingSender{}}
	f.passwords = newTestPasswords()
	f.tokens = newTestTokens(t, c)
	f.codes = newTestCodes(c, f.sender)
	f.auth = NewAuthServiceImpl(st, f.passwords, f.tokens, f.codes)
	return f
}

// seedUser creates an active user holding the default role.
func (f *authFixture) seedUser(t *testing.T, name, email, phone, password string) *domain.User {
	t.Helper()
	u := &domain.User{
		UserName:           domain.StrPtr(name),
		Email:              domain.StrPtr(email),
		Phone:              domain.StrPtr(phone),
		IsActive:           true,
		RegistrationMethod: domain.RegistrationPassword,
	}
	if password != "" {
		hash, err := f.passwords.Hash(password)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		u.PasswordHash = &hash
	}
	err := f.auth.Store.WithTx(context.Background(), func(tx storeTx) error {
		_, err := createUserWithDefaultRole(context.Background(), tx, u)
		return err
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}
