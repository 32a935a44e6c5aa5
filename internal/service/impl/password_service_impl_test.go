package impl

import (
	"errors"
	"strings"
	"testing"

	"identity/internal/domain"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	p := newTestPasswords()
	for _, pw := range []string{"Abcd123!", "correct horse battery staple", "密码Passw0rd!"} {
		hash, err := p.Hash(pw)
		if err != nil {
			t.Fatalf("hash %q: %v", pw, err)
		}
		if !p.Verify(pw, hash) {
			t.Fatalf("verify(%q) = false", pw)
		}
		if p.Verify(pw+"x", hash) {
			t.Fatalf("verify accepted a wrong password for %q", pw)
		}
	}
}

func TestHashRejectsEmpty(t *testing.T) {
	if _, err := newTestPasswords().Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestHashRejectsOverlongPassword(t *testing.T) {
	p := newTestPasswords()
	long := strings.Repeat("Aa1!", 19)

	_, err := p.Hash(long)
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	if domain.KindOf(err) != domain.KindClientInput {
		t.Fatalf("expected a client input error, got kind %v", domain.KindOf(err))
	}
	if _, err := p.Hash(long[:72]); err != nil {
		t.Fatalf("72 bytes should hash: %v", err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	p := newTestPasswords()
	for _, h := range []string{"", "not-a-hash", "$2a$10$short"} {
		if p.Verify("Abcd123!", h) {
			t.Fatalf("verify accepted malformed hash %q", h)
		}
	}
}

func TestCheckStrength(t *testing.T) {
	p := newTestPasswords()
	tests := []struct {
		name     string
		password string
		unmet    int
	}{
		{name: "strong", password: "Abcd123!", unmet: 0},
		{name: "short", password: "Ab1!", unmet: 1},
		{name: "no upper", password: "abcd123!", unmet: 1},
		{name: "no lower", password: "ABCD123!", unmet: 1},
		{name: "no digit", password: "Abcdefg!", unmet: 1},
		{name: "no special", password: "Abcd1234", unmet: 1},
		{name: "everything missing", password: "", unmet: 5},
		{name: "over bcrypt limit", password: strings.Repeat("Aa1!", 19), unmet: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := p.CheckStrength(tc.password)
			if tc.unmet == 0 {
				if err != nil {
					t.Fatalf("expected strong, got %v", err)
				}
				return
			}
			var pe *PasswordPolicyError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PasswordPolicyError, got %v", err)
			}
			if len(pe.Unmet) != tc.unmet {
				t.Fatalf("expected %d unmet rules, got %v", tc.unmet, pe.Unmet)
			}
			if !errors.Is(err, domain.ErrWeakPassword) {
				t.Fatalf("policy error should unwrap to ErrWeakPassword")
			}
		})
	}
}

func TestCheckStrengthTogglesOff(t *testing.T) {
	p := NewPasswordServiceBcrypt(4, PasswordPolicy{MinLength: 4})
	if err := p.CheckStrength("aaaa"); err != nil {
		t.Fatalf("expected relaxed policy to accept, got %v", err)
	}
}

func TestGenerateRandomHasEveryClass(t *testing.T) {
	p := newTestPasswords()
	for _, n := range []int{4, 5, 16, 64} {
		for i := 0; i < 50; i++ {
			pw, err := p.GenerateRandom(n)
			if err != nil {
				t.Fatalf("generate(%d): %v", n, err)
			}
			if len(pw) != n {
				t.Fatalf("generate(%d) returned length %d", n, len(pw))
			}
			for _, class := range []string{lowerChars, upperChars, digitChars, specialChars} {
				if !strings.ContainsAny(pw, class) {
					t.Fatalf("generate(%d) = %q misses class %q", n, pw, class)
				}
			}
			if err := p.CheckStrength(pw); n >= 8 && err != nil {
				t.Fatalf("generated password %q fails policy: %v", pw, err)
			}
		}
	}
}

func TestGenerateRandomRejectsShortLength(t *testing.T) {
	if _, err := newTestPasswords().GenerateRandom(3); !errors.Is(err, ErrPasswordLength) {
		t.Fatalf("expected ErrPasswordLength, got %v", err)
	}
}
