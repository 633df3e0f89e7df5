package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/ports"
)

// LogBillingNotifier records case events in the log. Used when no billing
// webhook is configured.
type LogBillingNotifier struct{}

var _ ports.BillingNotifier = LogBillingNotifier{}

func (LogBillingNotifier) NotifyCaseEvent(_ context.Context, event ports.CaseEvent) error {
	log.Info().
		Str("event", event.Type).
		Str("conversation_id", event.ConversationID).
		Str("owner_user_id", event.OwnerUserID).
		Str("lawyer_id", event.LawyerID).
		Time("occurred_at", event.OccurredAt).
		Msg("billing case event")
	return nil
}

// WebhookBillingNotifier posts case events as JSON to the billing service.
type WebhookBillingNotifier struct {
	webhook
}

var _ ports.BillingNotifier = (*WebhookBillingNotifier)(nil)

func NewWebhookBillingNotifier(url, secret string) *WebhookBillingNotifier {
	return &WebhookBillingNotifier{webhook: newWebhook(url, secret)}
}

func (n *WebhookBillingNotifier) NotifyCaseEvent(ctx context.Context, event ports.CaseEvent) error {
	return n.post(ctx, "billing webhook", event)
}
