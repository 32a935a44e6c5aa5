package impl

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"identity/internal/cache"
	"identity/internal/domain"
	"identity/internal/netutil"
	"identity/internal/notify"
	"identity/internal/observability/metrics"
	"identity/internal/observability/middleware"
	"identity/internal/service"

	"github.com/google/uuid"
)

const (
	codeStoreBuffer = 5 * time.Minute
	sendMinInterval = time.Minute
	sendHourWindow  = time.Hour
	sendHourlyLimit = 10
)

type VerificationConfig struct {
	CodeLength  int
	Expiry      time.Duration
	MaxAttempts int
}

type codeCache interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	SetJSONKeepTTL(ctx context.Context, key string, v any) error
	GetJSON(ctx context.Context, key string, out any) error
	Delete(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

type VerificationServiceImpl struct {
	cfg    VerificationConfig
	cache  codeCache
	sender notify.Sender
	now    func() time.Time
}

func NewVerificationService(cfg VerificationConfig, c *cache.Cache, sender notify.Sender) *VerificationServiceImpl {
	return &VerificationServiceImpl{cfg: cfg, cache: c, sender: sender, now: time.Now}
}

func codeKey(identifier string, ch domain.Channel, purpose string) string {
	return fmt.Sprintf("verification:%s:%s:%s", identifier, ch, purpose)
}

func rateKey(identifier string, ch domain.Channel, window string) string {
	return fmt.Sprintf("rate_limit:%s:%s:%s", identifier, ch, window)
}

func normalizePurpose(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return domain.DefaultPurpose
	}
	return p
}

func (v *VerificationServiceImpl) Send(ctx context.Context, in service.SendCodeInput) (time.Duration, error) {
	result := "success"
	defer func() {
		metrics.VerificationCodesTotal.WithLabelValues("send", string(in.Channel), result).Inc()
	}()

	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		result = "invalid"
		return 0, domain.ErrIdentifierRequired
	}
	if !in.Channel.Valid() {
		result = "invalid"
		return 0, domain.ErrInvalidChannel
	}
	purpose := normalizePurpose(in.Purpose)

	if err := v.checkRateLimit(ctx, identifier, in.Channel); err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			result = "rate_limited"
		} else {
			result = "failure"
		}
		return 0, err
	}

	key := codeKey(identifier, in.Channel, purpose)
	// a fresh code always supersedes the pending one
	if err := v.cache.Delete(ctx, key); err != nil {
		result = "failure"
		return 0, err
	}

	code, err := generateNumericCode(v.cfg.CodeLength)
	if err != nil {
		result = "failure"
		return 0, err
	}
	ip, _ := netutil.NormalizeIP(in.IP)
	now := v.now().UTC()
	rec := domain.VerificationCode{
		ID:         uuid.NewString(),
		Identifier: identifier,
		Code:       code,
		CodeType:   in.Channel,
		Purpose:    purpose,
		CreatedAt:  now,
		ExpiresAt:  now.Add(v.cfg.Expiry),
		IPAddress:  ip,
		UserAgent:  netutil.TruncateUserAgent(in.UserAgent),
	}
	if err := v.cache.SetJSON(ctx, key, rec, v.cfg.Expiry+codeStoreBuffer); err != nil {
		result = "failure"
		return 0, err
	}

	msg := notify.Message{
		Channel:    in.Channel,
		Recipient:  identifier,
		Code:       code,
		Purpose:    purpose,
		Language:   in.Language,
		ExpiresInS: int(v.cfg.Expiry.Seconds()),
	}
	if err := v.sender.Send(ctx, msg); err != nil {
		result = "delivery_failed"
		if delErr := v.cache.Delete(ctx, key); delErr != nil {
			slog.Error("drop undelivered code", append([]any{"error", delErr}, middleware.LogAttrs(ctx)...)...)
		}
		return 0, fmt.Errorf("%w: %v", domain.ErrCodeDeliveryFailed, err)
	}

	slog.Info("verification code sent", append([]any{"channel", in.Channel, "purpose", purpose}, middleware.LogAttrs(ctx)...)...)
	return v.cfg.Expiry, nil
}

func (v *VerificationServiceImpl) checkRateLimit(ctx context.Context, identifier string, ch domain.Channel) error {
	ok, err := v.cache.SetNX(ctx, rateKey(identifier, ch, "1min"), 1, sendMinInterval)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrRateLimited
	}
	n, err := v.cache.IncrWindow(ctx, rateKey(identifier, ch, "1hour"), sendHourWindow)
	if err != nil {
		return err
	}
	if n > sendHourlyLimit {
		return domain.ErrRateLimited
	}
	return nil
}

// Verify walks the pending record through its single-use state machine. The
// read-modify-write is not atomic; concurrent guesses may overshoot the
// attempt limit by the number of racing requests.
func (v *VerificationServiceImpl) Verify(ctx context.Context, identifier, code string, channel domain.Channel, purpose string) error {
	result := "success"
	defer func() {
		metrics.VerificationCodesTotal.WithLabelValues("verify", string(channel), result).Inc()
	}()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || code == "" || !channel.Valid() {
		result = "rejected"
		return domain.ErrInvalidCode
	}
	key := codeKey(identifier, channel, normalizePurpose(purpose))

	var rec domain.VerificationCode
	if err := v.cache.GetJSON(ctx, key, &rec); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			result = "rejected"
			return domain.ErrInvalidCode
		}
		result = "failure"
		return err
	}
	if rec.IsUsed || rec.IsExpired {
		result = "rejected"
		return domain.ErrInvalidCode
	}
	if v.now().UTC().After(rec.ExpiresAt) {
		result = "expired"
		return domain.ErrInvalidCode
	}

	rec.Attempts++
	if rec.Attempts > v.cfg.MaxAttempts {
		rec.IsExpired = true
		result = "exhausted"
		if err := v.cache.SetJSONKeepTTL(ctx, key, rec); err != nil {
			return err
		}
		return domain.ErrInvalidCode
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		result = "rejected"
		if err := v.cache.SetJSONKeepTTL(ctx, key, rec); err != nil {
			return err
		}
		return domain.ErrInvalidCode
	}

	rec.IsUsed = true
	if err := v.cache.SetJSONKeepTTL(ctx, key, rec); err != nil {
		result = "failure"
		return err
	}
	return nil
}

func generateNumericCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
