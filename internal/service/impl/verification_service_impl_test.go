package impl

import (
	"context"
	"errors"
	"testing"
	"time"

	"identity/internal/domain"
	"identity/internal/service"
)

const testPhone = "+15550001111"

func smsInput(id string) service.SendCodeInput {
	return service.SendCodeInput{Identifier: id, Channel: domain.ChannelSMS, IP: "::ffff:10.0.0.1", UserAgent: "test"}
}

func TestSendPersistsAndDispatches(t *testing.T) {
	mr, c := newTestCache(t)
	sender := &recordingSender{}
	v := newTestCodes(c, sender)

	ttl, err := v.Send(context.Background(), smsInput(testPhone))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if ttl != 5*time.Minute {
		t.Fatalf("expected 5m validity, got %s", ttl)
	}
	msg := sender.last(t)
	if len(msg.Code) != 6 || msg.Recipient != testPhone || msg.Purpose != domain.DefaultPurpose {
		t.Fatalf("unexpected message %+v", msg)
	}
	for _, r := range msg.Code {
		if r < '0' || r > '9' {
			t.Fatalf("code %q is not numeric", msg.Code)
		}
	}

	key := codeKey(testPhone, domain.ChannelSMS, domain.DefaultPurpose)
	if !mr.Exists(key) {
		t.Fatalf("expected %s to be stored", key)
	}
	if got := mr.TTL(key); got != 10*time.Minute {
		t.Fatalf("expected store ttl of expiry+5m, got %s", got)
	}
}

func TestVerifyIsSingleUse(t *testing.T) {
	_, c := newTestCache(t)
	sender := &recordingSender{}
	v := newTestCodes(c, sender)
	ctx := context.Background()

	if _, err := v.Send(ctx, smsInput(testPhone)); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := sender.last(t).Code

	if err := v.Verify(ctx, testPhone, code, domain.ChannelSMS, ""); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := v.Verify(ctx, testPhone, code, domain.ChannelSMS, ""); !errors.Is(err, domain.ErrInvalidCode) {
			t.Fatalf("reuse %d: expected ErrInvalidCode, got %v", i, err)
		}
	}
}

func TestNewCodeSupersedesOld(t *testing.T) {
	mr, c := newTestCache(t)
	sender := &recordingSender{}
	v := newTestCodes(c, sender)
	ctx := context.Background()

	if _, err := v.Send(ctx, smsInput(testPhone)); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	first := sender.last(t).Code

	mr.FastForward(61 * time.Second)
	if _, err := v.Send(ctx, smsInput(testPhone)); err != nil {
		t.Fatalf("send 2: %v", err)
	}
	second := sender.last(t).Code

	if first != second {
		if err := v.Verify(ctx, testPhone, first, domain.ChannelSMS, ""); !errors.Is(err, domain.ErrInvalidCode) {
			t.Fatalf("old code should be void, got %v", err)
		}
	}
	if err := v.Verify(ctx, testPhone, second, domain.ChannelSMS, ""); err != nil {
		t.Fatalf("new code: %v", err)
	}
}

func TestWrongGuessesVoidTheCode(t *testing.T) {
	_, c := newTestCache(t)
	sender := &recordingSender{}
	v := newTestCodes(c, sender)
	ctx := context.Background()

	if _, err := v.Send(ctx, smsInput(testPhone)); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := sender.last(t).Code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 5; i++ {
		if err := v.Verify(ctx, testPhone, wrong, domain.ChannelSMS, ""); !errors.Is(err, domain.ErrInvalidCode) {
			t.Fatalf("guess %d: expected ErrInvalidCode, got %v", i, err)
		}
	}
	if err := v.Verify(ctx, testPhone, code, domain.ChannelSMS, ""); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("correct code after 5 failures must be rejected, got %v", err)
	}
}

func TestExpiredCodeRejected(t *testing.T) {
	_, c := newTestCache(t)
	sender := &recordingSender{}
	v := newTestCodes(c, sender)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }
	if _, err := v.Send(ctx, smsInput(testPhone)); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := sender.last(t).Code

	now = now.Add(5*time.Minute + time.Second)
	if err := v.Verify(ctx, testPhone, code, domain.ChannelSMS, ""); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected expired code to be rejected, got %v", err)
	}
}

func TestPurposesDoNotCollide(t *testing.T) {
	_, c := newTestCache(t)
	sender := &recordingSender{}
	v := newTestCodes(c, sender)
	ctx := context.Background()

	in := smsInput(testPhone)
	in.Purpose = "reset_password"
	if _, err := v.Send(ctx, in); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := sender.last(t).Code
	if err := v.Verify(ctx, testPhone, code, domain.ChannelSMS, ""); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("default bucket must not see a namespaced code, got %v", err)
	}
	if err := v.Verify(ctx, testPhone, code, domain.ChannelSMS, "reset_password"); err != nil {
		t.Fatalf("namespaced verify: %v", err)
	}
}

func TestSendRateLimits(t *testing.T) {
	mr, c := newTestCache(t)
	v := newTestCodes(c, &recordingSender{})
	ctx := context.Background()

	if _, err := v.Send(ctx, smsInput(testPhone)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := v.Send(ctx, smsInput(testPhone)); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("second send within 60s: expected ErrRateLimited, got %v", err)
	}
	// other identifiers and channels are independent
	if _, err := v.Send(ctx, smsInput("+15550002222")); err != nil {
		t.Fatalf("other identifier: %v", err)
	}
	email := service.SendCodeInput{Identifier: testPhone, Channel: domain.ChannelEmail}
	if _, err := v.Send(ctx, email); err != nil {
		t.Fatalf("other channel: %v", err)
	}

	for i := 2; i <= 10; i++ {
		mr.FastForward(61 * time.Second)
		if _, err := v.Send(ctx, smsInput(testPhone)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	mr.FastForward(61 * time.Second)
	if _, err := v.Send(ctx, smsInput(testPhone)); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("11th send within the hour: expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(time.Hour)
	if _, err := v.Send(ctx, smsInput(testPhone)); err != nil {
		t.Fatalf("send after the window: %v", err)
	}
}

func TestDeliveryFailureLeavesNoCode(t *testing.T) {
	mr, c := newTestCache(t)
	sender := &recordingSender{err: errors.New("smtp down")}
	v := newTestCodes(c, sender)

	_, err := v.Send(context.Background(), smsInput(testPhone))
	if !errors.Is(err, domain.ErrCodeDeliveryFailed) {
		t.Fatalf("expected ErrCodeDeliveryFailed, got %v", err)
	}
	if mr.Exists(codeKey(testPhone, domain.ChannelSMS, domain.DefaultPurpose)) {
		t.Fatalf("undelivered code must be deleted")
	}
}

func TestSendValidatesInput(t *testing.T) {
	_, c := newTestCache(t)
	v := newTestCodes(c, &recordingSender{})
	ctx := context.Background()

	if _, err := v.Send(ctx, service.SendCodeInput{Channel: domain.ChannelSMS}); !errors.Is(err, domain.ErrIdentifierRequired) {
		t.Fatalf("expected ErrIdentifierRequired, got %v", err)
	}
	if _, err := v.Send(ctx, service.SendCodeInput{Identifier: testPhone, Channel: "fax"}); !errors.Is(err, domain.ErrInvalidChannel) {
		t.Fatalf("expected ErrInvalidChannel, got %v", err)
	}
}

func TestVerifyUnknownIdentifier(t *testing.T) {
	_, c := newTestCache(t)
	v := newTestCodes(c, &recordingSender{})
	if err := v.Verify(context.Background(), "nobody@example.com", "123456", domain.ChannelEmail, ""); !errors.Is(err, domain.ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

func TestVerifyStoreFailureIsNotAnInvalidCode(t *testing.T) {
	mr, c := newTestCache(t)
	v := newTestCodes(c, &recordingSender{})
	mr.SetError("LOADING")
	err := v.Verify(context.Background(), testPhone, "123456", domain.ChannelSMS, "")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
