// Package notify delivers verification codes over email and SMS.
package notify

import (
	"context"
	"log/slog"

	"identity/internal/domain"
	"identity/internal/observability/middleware"
)

// Message is one outbound verification notice.
type Message struct {
	Channel    domain.Channel `json:"channel"`
	Recipient  string         `json:"recipient"`
	Code       string         `json:"code"`
	Purpose    string         `json:"purpose"`
	Language   string         `json:"language,omitempty"`
	ExpiresInS int            `json:"expires_in"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the structured log. Intended for local
// development where no relay is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (l LogSender) Send(ctx context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := append([]any{
		"channel", msg.Channel,
		"recipient", msg.Recipient,
		"code", msg.Code,
		"purpose", msg.Purpose,
	}, middleware.LogAttrs(ctx)...)
	logger.Info("verification code dispatched (log transport)", attrs...)
	return nil
}
