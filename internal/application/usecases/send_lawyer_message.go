package usecases

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/application/services"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

type SendLawyerMessageInput struct {
	Identity *models.ConnectionIdentity
	RoomID   string
	Text     string
}

type SendLawyerMessageOutput struct {
	Message      *models.Message
	Conversation *models.Conversation
	// Claimed is set when this message claimed the case for the sender.
	Claimed bool
}

// SendLawyerMessage posts a staff message into a case. A lawyer writing into
// an unassigned case that needs one claims it first.
type SendLawyerMessage struct {
	conversations *services.ConversationService
	messages      *services.MessageService
	authorizer    *services.MessageAuthorizer
	locks         *services.ConversationLocks
	notifier      ports.ConversationNotifier
	idGenerator   ports.IDGenerator
}

func NewSendLawyerMessage(
	conversations *services.ConversationService,
	messages *services.MessageService,
	authorizer *services.MessageAuthorizer,
	locks *services.ConversationLocks,
	notifier ports.ConversationNotifier,
	idGenerator ports.IDGenerator,
) *SendLawyerMessage {
	return &SendLawyerMessage{
		conversations: conversations,
		messages:      messages,
		authorizer:    authorizer,
		locks:         locks,
		notifier:      notifier,
		idGenerator:   idGenerator,
	}
}

func (uc *SendLawyerMessage) Execute(ctx context.Context, input SendLawyerMessageInput) (*SendLawyerMessageOutput, error) {
	ctx = context.WithoutCancel(ctx)

	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, domain.NewDomainError(domain.ErrEmptyContent, "message cannot be empty")
	}
	if err := services.ValidateStringLength(text, "message", 0, services.MaxMessageLength); err != nil {
		return nil, err
	}
	if !input.Identity.Role.IsStaff() {
		return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied,
			"only staff can post into a case", domain.CodeAuthorizationDenied)
	}

	conv, err := uc.conversations.GetByRoom(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(conv.ID)
	defer unlock()

	// Re-read under the lock; a turn may have changed the status meanwhile.
	conv, err = uc.conversations.Get(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	sender, kind := services.LawyerSender(input.Identity), models.SenderLawyer
	if input.Identity.Role == models.RoleModerator {
		sender, kind = services.ModeratorSender(input.Identity), models.SenderModerator
	}

	out := &SendLawyerMessageOutput{Conversation: conv}
	decision := uc.authorizer.Authorize(ctx, sender, conv)
	if !decision.Allowed {
		return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, decision.Reason, domain.CodeAuthorizationDenied)
	}
	if decision.Claim {
		claimed, err := uc.conversations.Claim(ctx, input.Identity, conv.ID)
		if err != nil {
			return nil, err
		}
		conv = claimed
		out.Conversation = claimed
		out.Claimed = true
		log.Info().Str("conversation_id", conv.ID).Str("lawyer_id", input.Identity.UserID).Msg("case claimed by first lawyer message")
	}

	msg := models.NewMessage(uc.idGenerator.GenerateMessageID(), conv.ID, kind, input.Identity.UserID, text, models.PlainText{})
	if err := uc.messages.Append(ctx, sender, conv, msg); err != nil {
		return nil, err
	}
	out.Message = msg

	uc.notifier.NotifyMessage(conv, msg)
	uc.notifier.NotifyLawyerMessage(conv, msg)
	return out, nil
}
