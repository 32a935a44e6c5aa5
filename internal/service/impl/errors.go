package impl

import (
	"errors"
	"strings"

	"identity/internal/domain"
)

var (
	ErrEmptyPassword   = &domain.Error{Kind: domain.KindClientInput, Code: "empty_password", Message: "password is required"}
	ErrPasswordTooLong = &domain.Error{Kind: domain.KindClientInput, Code: "password_too_long", Message: "password must be at most 72 bytes"}
	ErrPasswordLength  = errors.New("random password length must be at least 4")
	ErrNilStore        = errors.New("nil store")
)

// PasswordPolicyError lists every rule a rejected password failed.
type PasswordPolicyError struct {
	Unmet []string
}

func (e *PasswordPolicyError) Error() string {
	return "password does not meet the strength policy: " + strings.Join(e.Unmet, ", ")
}

func (e *PasswordPolicyError) Unwrap() error { return domain.ErrWeakPassword }
