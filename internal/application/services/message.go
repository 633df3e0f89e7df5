package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/adapters/metrics"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

type MessageService struct {
	authorizer  *MessageAuthorizer
	messageRepo ports.MessageRepository
	convRepo    ports.ConversationRepository
	attachments ports.AttachmentService
}

func NewMessageService(
	authorizer *MessageAuthorizer,
	messageRepo ports.MessageRepository,
	convRepo ports.ConversationRepository,
	attachments ports.AttachmentService,
) *MessageService {
	return &MessageService{
		authorizer:  authorizer,
		messageRepo: messageRepo,
		convRepo:    convRepo,
		attachments: attachments,
	}
}

// Append authorizes and persists a visible message. Nothing is broadcast
// here; callers publish only after Append succeeds.
func (s *MessageService) Append(ctx context.Context, sender Sender, conv *models.Conversation, msg *models.Message) error {
	if strings.TrimSpace(msg.Text) == "" && len(msg.Attachments) == 0 {
		return domain.NewDomainError(domain.ErrEmptyContent, "message has no text or attachments")
	}

	decision := s.authorizer.Authorize(ctx, sender, conv)
	if !decision.Allowed {
		return domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, decision.Reason, domain.CodeAuthorizationDenied)
	}
	if decision.Claim {
		return domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "case must be claimed first", domain.CodeAuthorizationDenied)
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailure, err)
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Sender)).Inc()

	s.recordActivity(ctx, conv, msg)
	return nil
}

// RecordHidden persists an audit record such as a function call. Failures are
// logged and swallowed.
func (s *MessageService) RecordHidden(ctx context.Context, msg *models.Message) {
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		log.Warn().Err(err).
			Str("conversation_id", msg.ConversationID).
			Str("kind", string(msg.Payload.Kind())).
			Msg("failed to record audit message")
	}
}

// History returns every stored message of a conversation, hidden ones included.
func (s *MessageService) History(ctx context.Context, conversationID string) ([]*models.Message, error) {
	if err := ValidateID(conversationID, "conversation"); err != nil {
		return nil, err
	}
	return s.messageRepo.ListByConversation(ctx, conversationID)
}

// VisibleHistory returns the client-facing transcript with attachments resolved.
func (s *MessageService) VisibleHistory(ctx context.Context, conversationID string) ([]*models.Message, error) {
	all, err := s.History(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	visible := models.VisibleMessages(all)
	ResolveAttachments(ctx, s.attachments, visible)
	return visible, nil
}

func (s *MessageService) recordActivity(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	unread := msg.Sender != models.SenderUser
	if err := s.convRepo.RecordActivity(ctx, conv.ID, msg.CreatedAt, unread); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to record conversation activity")
		return
	}
	conv.Touch(msg.CreatedAt)
	if unread {
		conv.UnreadCount++
	}
}
