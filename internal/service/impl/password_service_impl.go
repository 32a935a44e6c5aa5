package impl

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	// bcrypt only reads the first 72 bytes
	maxPasswordBytes = 72
)

type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

type PasswordServiceImpl struct {
	cost   int
	policy PasswordPolicy
}

func NewPasswordServiceBcrypt(cost int, policy PasswordPolicy) *PasswordServiceImpl {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordServiceImpl{cost: cost, policy: policy}
}

func (p *PasswordServiceImpl) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(h), nil
}

func (p *PasswordServiceImpl) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (p *PasswordServiceImpl) CheckStrength(password string) error {
	var unmet []string
	if len([]rune(password)) < p.policy.MinLength {
		unmet = append(unmet, fmt.Sprintf("at least %d characters", p.policy.MinLength))
	}
	if len(password) > maxPasswordBytes {
		unmet = append(unmet, fmt.Sprintf("at most %d bytes", maxPasswordBytes))
	}
	if p.policy.RequireUpper && !strings.ContainsFunc(password, unicode.IsUpper) {
		unmet = append(unmet, "an uppercase letter")
	}
	if p.policy.RequireLower && !strings.ContainsFunc(password, unicode.IsLower) {
		unmet = append(unmet, "a lowercase letter")
	}
	if p.policy.RequireDigit && !strings.ContainsFunc(password, unicode.IsDigit) {
		unmet = append(unmet, "a digit")
	}
	if p.policy.RequireSpecial && !strings.ContainsAny(password, specialChars) {
		unmet = append(unmet, "a special character")
	}
	if len(unmet) > 0 {
		return &PasswordPolicyError{Unmet: unmet}
	}
	return nil
}

// GenerateRandom returns a password holding at least one character of each
// class, shuffled with crypto/rand.
func (p *PasswordServiceImpl) GenerateRandom(length int) (string, error) {
	if length < 4 {
		return "", ErrPasswordLength
	}
	out := make([]byte, 0, length)
	for _, class := range []string{lowerChars, upperChars, digitChars, specialChars} {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	all := lowerChars + upperChars + digitChars + specialChars
	for len(out) < length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

func randomChar(set string) (byte, error) {
	i, err := randomInt(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}
