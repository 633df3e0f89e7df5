package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/domain/models"
)

// Sender is the actor a message is attributed to.
type Sender struct {
	Kind        models.Sender
	Role        models.Role
	ID          string
	Permissions []string
	// Closing marks the assistant reply of the turn that resolved the
	// conversation itself.
	Closing bool
}

func UserSender(identity *models.ConnectionIdentity) Sender {
	return Sender{Kind: models.SenderUser, Role: models.RoleClient, ID: identity.UserID}
}

func LawyerSender(identity *models.ConnectionIdentity) Sender {
	return Sender{Kind: models.SenderLawyer, Role: identity.Role, ID: identity.UserID, Permissions: identity.Permissions}
}

func ModeratorSender(identity *models.ConnectionIdentity) Sender {
	return Sender{Kind: models.SenderModerator, Role: identity.Role, ID: identity.UserID, Permissions: identity.Permissions}
}

var (
	AISender        = Sender{Kind: models.SenderAI, Role: models.RoleAI}
	AIClosingSender = Sender{Kind: models.SenderAI, Role: models.RoleAI, Closing: true}
	SystemSender    = Sender{Kind: models.SenderSystem, Role: models.RoleSystem}
)

// Denial reasons reported on a Decision.
const (
	ReasonConversationClosed   = "conversation_closed"
	ReasonAIStatus             = "ai_not_allowed_in_status"
	ReasonNotAssigned          = "not_assigned_lawyer"
	ReasonModerationPermission = "moderation_permission_required"
	ReasonUnknownSender        = "unknown_sender"
)

// Decision is the outcome of a message authorization. Claim asks the caller to
// claim the case for the sender before persisting the message.
type Decision struct {
	Allowed bool
	Reason  string
	Claim   bool
}

func allow() Decision             { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// MessageAuthorizer decides whether a sender may post into a conversation.
type MessageAuthorizer struct{}

func NewMessageAuthorizer() *MessageAuthorizer {
	return &MessageAuthorizer{}
}

func (a *MessageAuthorizer) Authorize(_ context.Context, sender Sender, conv *models.Conversation) Decision {
	capCtx := models.CapabilityContext{
		ActorID:      sender.ID,
		Permissions:  sender.Permissions,
		Conversation: conv,
	}

	var d Decision
	switch sender.Kind {
	case models.SenderUser:
		if models.Can(models.RoleClient, models.ActionSendMessage, capCtx) {
			d = allow()
		} else {
			d = deny(ReasonConversationClosed)
		}

	case models.SenderAI:
		action := models.ActionAIReply
		if sender.Closing {
			action = models.ActionAIClosingReply
		}
		if models.Can(models.RoleAI, action, capCtx) {
			d = allow()
		} else {
			d = deny(ReasonAIStatus)
		}

	case models.SenderLawyer:
		switch {
		case models.Can(sender.Role, models.ActionSendLawyerMessage, capCtx):
			d = allow()
		case models.Can(sender.Role, models.ActionClaimCase, capCtx):
			d = Decision{Allowed: true, Claim: true}
		default:
			d = deny(ReasonNotAssigned)
		}

	case models.SenderModerator:
		if models.Can(sender.Role, models.ActionModerate, capCtx) {
			d = allow()
		} else {
			d = deny(ReasonModerationPermission)
		}

	case models.SenderSystem:
		d = allow()

	default:
		d = deny(ReasonUnknownSender)
	}

	if !d.Allowed {
		log.Debug().
			Str("sender", string(sender.Kind)).
			Str("sender_id", sender.ID).
			Str("conversation_id", conv.ID).
			Str("status", string(conv.Status)).
			Str("reason", d.Reason).
			Msg("message denied")
	}
	return d
}
