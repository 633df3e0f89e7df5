package usecases

import (
	"context"
	"strings"

	"github.com/longregen/counsel/internal/application/services"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

type SendMessageInput struct {
	Identity       *models.ConnectionIdentity
	ConversationID string
	Text           string
	Attachments    []models.Attachment
}

type SendMessageOutput struct {
	Message *models.Message
	// Turn is nil when the conversation no longer takes assistant replies.
	Turn *GenerateReplyOutput
}

// SendMessage stores a client message and runs the assistant turn it starts.
// The whole pipeline holds the conversation lock, so a second message for the
// same conversation waits for the turn in flight.
type SendMessage struct {
	conversations *services.ConversationService
	messages      *services.MessageService
	locks         *services.ConversationLocks
	generateReply *GenerateReply
	notifier      ports.ConversationNotifier
	idGenerator   ports.IDGenerator
}

func NewSendMessage(
	conversations *services.ConversationService,
	messages *services.MessageService,
	locks *services.ConversationLocks,
	generateReply *GenerateReply,
	notifier ports.ConversationNotifier,
	idGenerator ports.IDGenerator,
) *SendMessage {
	return &SendMessage{
		conversations: conversations,
		messages:      messages,
		locks:         locks,
		generateReply: generateReply,
		notifier:      notifier,
		idGenerator:   idGenerator,
	}
}

func (uc *SendMessage) Execute(ctx context.Context, input SendMessageInput) (*SendMessageOutput, error) {
	// A client disconnect must not cancel persistence or generation.
	ctx = context.WithoutCancel(ctx)

	text := strings.TrimSpace(input.Text)
	if text == "" && len(input.Attachments) == 0 {
		return nil, domain.NewDomainError(domain.ErrEmptyContent, "message has no text or attachments")
	}
	if err := services.ValidateStringLength(text, "message", 0, services.MaxMessageLength); err != nil {
		return nil, err
	}
	if err := services.ValidateID(input.ConversationID, "conversation"); err != nil {
		return nil, err
	}

	unlock := uc.locks.Lock(input.ConversationID)
	defer unlock()

	// 1. Ownership
	conv, err := uc.conversations.GetForViewer(ctx, input.Identity, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.BelongsTo(input.Identity.UserID) {
		return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied,
			"only the conversation owner sends client messages", domain.CodeAuthorizationDenied)
	}

	// 2. Persist, then broadcast
	msg := models.NewUserMessage(uc.idGenerator.GenerateMessageID(), conv.ID, input.Identity.UserID, text)
	msg.Attachments = input.Attachments
	if err := uc.messages.Append(ctx, services.UserSender(input.Identity), conv, msg); err != nil {
		return nil, err
	}
	uc.notifier.NotifyMessage(conv, msg)

	out := &SendMessageOutput{Message: msg}

	// 3. Assistant turn, only while the assistant may still answer
	if !models.Can(models.RoleAI, models.ActionAIReply, models.CapabilityContext{Conversation: conv}) {
		return out, nil
	}
	turn, err := uc.generateReply.Execute(ctx, GenerateReplyInput{Conversation: conv, UserMessage: msg})
	if err != nil {
		return out, err
	}
	out.Turn = turn
	return out, nil
}
