package service

import (
	"context"
	"time"

	"identity/internal/domain"
)

type SendCodeInput struct {
	Identifier string
	Channel    domain.Channel
	Purpose    string
	IP         string
	UserAgent  string
	Language   string
}

type VerificationService interface {
	// Send issues a fresh code and returns how long it stays valid.
	Send(ctx context.Context, in SendCodeInput) (time.Duration, error)
	// Verify consumes a matching code. Every rejection is domain.ErrInvalidCode.
	Verify(ctx context.Context, identifier, code string, channel domain.Channel, purpose string) error
}
