package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

// LogCodeSender stands in for an email/SMS gateway. The code itself is only
// logged when RevealCodes is set, which is meant for local development.
type LogCodeSender struct {
	RevealCodes bool
}

var _ ports.CodeSender = LogCodeSender{}

func (s LogCodeSender) SendVerificationCode(_ context.Context, contact models.Contact, code string, expiresAt time.Time) error {
	ev := log.Info().
		Str("contact", contact.String()).
		Time("expires_at", expiresAt)
	if s.RevealCodes {
		ev = ev.Str("code", code)
	}
	ev.Msg("verification code issued")
	return nil
}

// VerificationCodeDelivery is the body posted to the delivery gateway.
type VerificationCodeDelivery struct {
	Channel   string    `json:"channel"`
	To        string    `json:"to"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WebhookCodeSender hands verification codes to an email/SMS gateway over
// HTTP. Email is used when the contact has both.
type WebhookCodeSender struct {
	webhook
}

var _ ports.CodeSender = (*WebhookCodeSender)(nil)

func NewWebhookCodeSender(url, secret string) *WebhookCodeSender {
	return &WebhookCodeSender{webhook: newWebhook(url, secret)}
}

func (s *WebhookCodeSender) SendVerificationCode(ctx context.Context, contact models.Contact, code string, expiresAt time.Time) error {
	delivery := VerificationCodeDelivery{Channel: "email", To: contact.Email, Code: code, ExpiresAt: expiresAt}
	if contact.Email == "" {
		delivery.Channel = "sms"
		delivery.To = contact.Phone
	}

	if err := s.post(ctx, "code delivery webhook", delivery); err != nil {
		return err
	}
	log.Info().
		Str("contact", contact.String()).
		Str("channel", delivery.Channel).
		Time("expires_at", expiresAt).
		Msg("verification code sent")
	return nil
}
