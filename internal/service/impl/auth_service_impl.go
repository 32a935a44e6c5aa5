package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/observability/metrics"
	"identity/internal/observability/middleware"
	"identity/internal/service"
	"identity/internal/store"

	"github.com/google/uuid"
)

const (
	userNameMaxLen         = 50
	userNameMinLen         = 3
	generatedPasswordLen   = 16
	uniqueUserNameAttempts = 1000
)

type AuthServiceImpl struct {
	Store           dataStore
	PasswordService service.PasswordService
	TService        service.TokenService
	Codes           service.VerificationService

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthServiceImpl(st *store.Store, passwordService service.PasswordService, tokenService service.TokenService, codes service.VerificationService) *AuthServiceImpl {
	return &AuthServiceImpl{
		Store:           gormStoreAdapter{store: st},
		PasswordService: passwordService,
		TService:        tokenService,
		Codes:           codes,
	}
}

type dataStore interface {
	storeTx
	WithTx(ctx context.Context, fn func(tx storeTx) error) error
}

type storeTx interface {
	Users() userStore
	Roles() roleStore
}

type userStore interface {
	Create(ctx context.Context, usr *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUserName(ctx context.Context, name string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetByProviderID(ctx context.Context, p domain.Provider, externalID string) (*domain.User, error)
	UserNameTaken(ctx context.Context, name string) (bool, error)
	EmailOrPhoneTaken(ctx context.Context, email, phone *string) (bool, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time, ip string) error
	UpdateProfile(ctx context.Context, id uuid.UUID, fullName, avatar *string) error
	SetProviderID(ctx context.Context, id uuid.UUID, p domain.Provider, externalID *string) error
}

type roleStore interface {
	GetOrCreate(ctx context.Context, name, description string) (*domain.Role, error)
	Assign(ctx context.Context, userID, roleID uuid.UUID) error
	NamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

type gormStoreAdapter struct {
	store *store.Store
}

func (g gormStoreAdapter) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	if g.store == nil {
		return ErrNilStore
	}
	return g.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(gormTxAdapter{tx: tx})
	})
}

func (g gormStoreAdapter) Users() userStore { return g.store.Users() }

func (g gormStoreAdapter) Roles() roleStore { return g.store.Roles() }

type gormTxAdapter struct {
	tx *store.Store
}

func (g gormTxAdapter) Users() userStore { return g.tx.Users() }

func (g gormTxAdapter) Roles() roleStore { return g.tx.Roles() }

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func invalidRequest(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, msg)
}

// ====== Login ======

func (a *AuthServiceImpl) LoginPassword(ctx context.Context, r dto.PasswordLoginRequest, ip string) (*dto.LoginResponse, error) {
	result := "failure"
	defer func() {
		metrics.LoginsTotal.WithLabelValues("password", result).Inc()
	}()

	lookup, value, err := a.passwordLookup(r)
	if err != nil {
		return nil, err
	}
	if r.Password == "" {
		return nil, ErrEmptyPassword
	}
	user, err := lookup(ctx, value)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			a.checkPassword(r.Password, "")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}
	// not-found and mismatch share one rejection
	if !a.checkPassword(r.Password, domain.Deref(user.PasswordHash)) {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrUserDisabled
	}

	resp, err := a.CompleteLogin(ctx, user, "password", ip)
	if err != nil {
		return nil, err
	}
	result = "success"
	return resp, nil
}

// checkPassword always runs one bcrypt compare. Without a stored hash it
// compares against a dummy hash and reports a mismatch.
func (a *AuthServiceImpl) checkPassword(password, hash string) bool {
	if hash != "" {
		return a.PasswordService.Verify(password, hash)
	}
	a.dummyOnce.Do(func() {
		pw, err := a.PasswordService.GenerateRandom(generatedPasswordLen)
		if err != nil {
			return
		}
		a.dummyHash, _ = a.PasswordService.Hash(pw)
	})
	_ = a.PasswordService.Verify(password, a.dummyHash)
	return false
}

func (a *AuthServiceImpl) passwordLookup(r dto.PasswordLoginRequest) (func(context.Context, string) (*domain.User, error), string, error) {
	users := a.Store.Users()
	var (
		lookup func(context.Context, string) (*domain.User, error)
		value  string
		n      int
	)
	if v := strings.TrimSpace(r.UserName); v != "" {
		lookup, value = users.GetByUserName, v
		n++
	}
	if v := strings.TrimSpace(r.Email); v != "" {
		lookup, value = users.GetByEmail, v
		n++
	}
	if v := strings.TrimSpace(r.Phone); v != "" {
		lookup, value = users.GetByPhone, v
		n++
	}
	switch {
	case n == 0:
		return nil, "", domain.ErrIdentifierRequired
	case n > 1:
		return nil, "", domain.ErrAmbiguousIdentifier
	}
	return lookup, value, nil
}

func (a *AuthServiceImpl) LoginCode(ctx context.Context, identifier, code string, channel domain.Channel, ip string) (*dto.LoginResponse, error) {
	result := "failure"
	defer func() {
		metrics.LoginsTotal.WithLabelValues(string(channel), result).Inc()
	}()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, domain.ErrIdentifierRequired
	}
	if !channel.Valid() {
		return nil, domain.ErrInvalidChannel
	}
	if err := a.Codes.Verify(ctx, identifier, code, channel, domain.DefaultPurpose); err != nil {
		return nil, err
	}

	user, err := a.resolveContact(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrUserDisabled
	}

	resp, err := a.CompleteLogin(ctx, user, string(channel), ip)
	if err != nil {
		return nil, err
	}
	result = "success"
	return resp, nil
}

// resolveContact tries email first, then phone.
func (a *AuthServiceImpl) resolveContact(ctx context.Context, identifier string) (*domain.User, error) {
	users := a.Store.Users()
	user, err := users.GetByEmail(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, storeErr(err)
	}
	user, err = users.GetByPhone(ctx, identifier)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, domain.ErrInvalidCode
	}
	return nil, storeErr(err)
}

func (a *AuthServiceImpl) CompleteLogin(ctx context.Context, user *domain.User, method, ip string) (*dto.LoginResponse, error) {
	now := time.Now().UTC()
	if err := a.Store.Users().UpdateLastLogin(ctx, user.ID, now, ip); err != nil {
		slog.Warn("update last login", append([]any{"user_id", user.ID, "error", err}, middleware.LogAttrs(ctx)...)...)
	} else {
		user.LastLoginAt = &now
		user.LastLoginIP = domain.StrPtr(ip)
	}

	roles, err := a.Store.Roles().NamesForUser(ctx, user.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	access, refresh, err := a.mintPair(ctx, user, roles)
	if err != nil {
		return nil, err
	}

	slog.Info("login succeeded", append([]any{"user_id", user.ID, "method", method}, middleware.LogAttrs(ctx)...)...)
	return &dto.LoginResponse{
		Success:      true,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(a.TService.AccessTTL().Seconds()),
		User:         dto.NewUserResponse(user, roles),
		Message:      "login successful",
	}, nil
}

func (a *AuthServiceImpl) mintPair(ctx context.Context, user *domain.User, roles []string) (string, string, error) {
	claims := service.ClaimsFor(user, roles)
	access, err := a.TService.IssueAccess(ctx, claims)
	if err != nil {
		return "", "", err
	}
	refresh, err := a.TService.IssueRefresh(ctx, claims)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Refresh mints a new pair from a refresh token. The presented refresh token
// stays valid until it expires.
func (a *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (*dto.RefreshResponse, error) {
	claims, err := a.TService.VerifyType(ctx, refreshToken, service.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	user, err := a.Store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrInvalidToken
		}
		return nil, storeErr(err)
	}
	if !user.IsActive {
		return nil, domain.ErrUserDisabled
	}
	roles, err := a.Store.Roles().NamesForUser(ctx, user.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	access, refresh, err := a.mintPair(ctx, user, roles)
	if err != nil {
		return nil, err
	}
	return &dto.RefreshResponse{
		Success:      true,
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(a.TService.AccessTTL().Seconds()),
		Message:      "token refreshed",
	}, nil
}

func (a *AuthServiceImpl) Logout(ctx context.Context, claims *service.Claims, token string) (*dto.LogoutResponse, error) {
	if claims == nil {
		return nil, domain.ErrInvalidToken
	}
	var exp *time.Time
	if claims.ExpiresAt != nil {
		t := claims.ExpiresAt.Time
		exp = &t
	}
	if err := a.TService.Blacklist(ctx, token, exp); err != nil {
		slog.Warn("logout blacklist failed", append([]any{"user_id", claims.Subject, "error", err}, middleware.LogAttrs(ctx)...)...)
		return nil, err
	}
	slog.Info("logout", append([]any{"user_id", claims.Subject}, middleware.LogAttrs(ctx)...)...)
	return &dto.LogoutResponse{
		Success:  true,
		Message:  "logged out",
		UserID:   claims.Subject,
		UserName: claims.Username,
	}, nil
}

func (a *AuthServiceImpl) CurrentUser(ctx context.Context, claims *service.Claims) (*dto.UserResponse, error) {
	if claims == nil {
		return nil, domain.ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	user, err := a.Store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storeErr(err)
	}
	roles, err := a.Store.Roles().NamesForUser(ctx, user.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	out := dto.NewUserResponse(user, roles)
	return &out, nil
}

// ====== Registration ======

func validateProfile(userName, email, phone, fullName string) error {
	if n := utf8.RuneCountInString(userName); n < userNameMinLen || n > userNameMaxLen {
		return invalidRequest(fmt.Sprintf("user_name must be %d-%d characters", userNameMinLen, userNameMaxLen))
	}
	if utf8.RuneCountInString(email) > 100 {
		return invalidRequest("email must be at most 100 characters")
	}
	if email != "" && !strings.Contains(email, "@") {
		return invalidRequest("email is malformed")
	}
	if utf8.RuneCountInString(phone) > 20 {
		return invalidRequest("phone must be at most 20 characters")
	}
	if utf8.RuneCountInString(fullName) > 100 {
		return invalidRequest("user_full_name must be at most 100 characters")
	}
	return nil
}

func (a *AuthServiceImpl) RegisterPassword(ctx context.Context, r dto.PasswordRegisterRequest) (*dto.UserResponse, error) {
	result := "failure"
	defer func() {
		metrics.RegistrationsTotal.WithLabelValues(domain.RegistrationPassword, result).Inc()
	}()

	userName := strings.TrimSpace(r.UserName)
	email := strings.TrimSpace(r.Email)
	phone := strings.TrimSpace(r.Phone)
	if err := validateProfile(userName, email, phone, r.FullName); err != nil {
		return nil, err
	}
	if r.Password == "" {
		return nil, ErrEmptyPassword
	}
	if err := a.PasswordService.CheckStrength(r.Password); err != nil {
		return nil, err
	}
	hash, err := a.PasswordService.Hash(r.Password)
	if err != nil {
		return nil, err
	}

	u := &domain.User{
		UserName:           &userName,
		Email:              domain.StrPtr(email),
		Phone:              domain.StrPtr(phone),
		PasswordHash:       &hash,
		FullName:           domain.StrPtr(r.FullName),
		IsActive:           true,
		RegistrationMethod: domain.RegistrationPassword,
	}
	var roles []string
	err = a.Store.WithTx(ctx, func(tx storeTx) error {
		taken, err := tx.Users().UserNameTaken(ctx, userName)
		if err != nil {
			return storeErr(err)
		}
		if taken {
			return domain.ErrUserExists
		}
		taken, err = tx.Users().EmailOrPhoneTaken(ctx, u.Email, u.Phone)
		if err != nil {
			return storeErr(err)
		}
		if taken {
			return domain.ErrUserExists
		}
		roles, err = createUserWithDefaultRole(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}

	result = "success"
	slog.Info("user registered", append([]any{"user_id", u.ID, "method", domain.RegistrationPassword}, middleware.LogAttrs(ctx)...)...)
	out := dto.NewUserResponse(u, roles)
	return &out, nil
}

// RegisterCode creates an account proven by a verification code. The
// account gets a random password; the user signs in with codes or resets it.
func (a *AuthServiceImpl) RegisterCode(ctx context.Context, r service.CodeRegistration) (*dto.UserResponse, error) {
	result := "failure"
	defer func() {
		metrics.RegistrationsTotal.WithLabelValues(string(r.Channel), result).Inc()
	}()

	identifier := strings.TrimSpace(r.Identifier)
	if identifier == "" {
		return nil, domain.ErrIdentifierRequired
	}
	if !r.Channel.Valid() {
		return nil, domain.ErrInvalidChannel
	}

	u := &domain.User{
		FullName:           domain.StrPtr(r.FullName),
		IsActive:           true,
		RegistrationMethod: string(r.Channel),
	}
	base := strings.TrimSpace(r.UserName)
	switch r.Channel {
	case domain.ChannelSMS:
		if utf8.RuneCountInString(identifier) > 20 {
			return nil, invalidRequest("phone must be at most 20 characters")
		}
		u.Phone = &identifier
		u.PhoneVerified = true
		if base == "" {
			base = identifier
		}
	case domain.ChannelEmail:
		if utf8.RuneCountInString(identifier) > 100 || !strings.Contains(identifier, "@") {
			return nil, invalidRequest("email is malformed")
		}
		u.Email = &identifier
		u.EmailVerified = true
		if base == "" {
			base, _, _ = strings.Cut(identifier, "@")
		}
	}
	if utf8.RuneCountInString(r.FullName) > 100 {
		return nil, invalidRequest("user_full_name must be at most 100 characters")
	}

	taken, err := a.Store.Users().EmailOrPhoneTaken(ctx, u.Email, u.Phone)
	if err != nil {
		return nil, storeErr(err)
	}
	if taken {
		return nil, domain.ErrUserExists
	}
	if err := a.Codes.Verify(ctx, identifier, r.Code, r.Channel, domain.DefaultPurpose); err != nil {
		return nil, err
	}

	pw, err := a.PasswordService.GenerateRandom(generatedPasswordLen)
	if err != nil {
		return nil, err
	}
	hash, err := a.PasswordService.Hash(pw)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = &hash

	var roles []string
	err = a.Store.WithTx(ctx, func(tx storeTx) error {
		name, err := uniqueUserName(ctx, tx.Users(), base)
		if err != nil {
			return err
		}
		u.UserName = &name
		roles, err = createUserWithDefaultRole(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}

	result = "success"
	slog.Info("user registered", append([]any{"user_id", u.ID, "method", r.Channel}, middleware.LogAttrs(ctx)...)...)
	out := dto.NewUserResponse(u, roles)
	return &out, nil
}

// createUserWithDefaultRole inserts u and links it to the default role,
// returning the user's role names.
func createUserWithDefaultRole(ctx context.Context, tx storeTx, u *domain.User) ([]string, error) {
	now := time.Now().UTC()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Language == "" {
		u.Language = "zh-CN"
	}
	u.CreatedAt, u.UpdatedAt = now, now
	if err := tx.Users().Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domain.ErrUserExists
		}
		return nil, storeErr(err)
	}
	role, err := tx.Roles().GetOrCreate(ctx, domain.DefaultRoleName, "default role")
	if err != nil {
		return nil, storeErr(err)
	}
	if err := tx.Roles().Assign(ctx, u.ID, role.ID); err != nil {
		return nil, storeErr(err)
	}
	return []string{role.Name}, nil
}

// uniqueUserName returns base, or base followed by the smallest free
// numeric suffix, truncated to fit the column.
func uniqueUserName(ctx context.Context, users userStore, base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "user"
	}
	for i := 0; i < uniqueUserNameAttempts; i++ {
		suffix := ""
		if i > 0 {
			suffix = strconv.Itoa(i)
		}
		candidate := truncateRunes(base, userNameMaxLen-len(suffix)) + suffix
		taken, err := users.UserNameTaken(ctx, candidate)
		if err != nil {
			return "", storeErr(err)
		}
		if !taken {
			return candidate, nil
		}
	}
	suffix := "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return truncateRunes(base, userNameMaxLen-len(suffix)) + suffix, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
