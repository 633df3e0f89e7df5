package usecases

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/application/services"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

type VerifyCodeInput struct {
	Identity *models.ConnectionIdentity
	RoomID   string
	Code     string
	Email    string
	Phone    string
}

type VerifyCodeOutput struct {
	Verified     bool
	User         *models.User
	Conversation *models.Conversation
	// Message is the system message confirming or rejecting the code.
	Message *models.Message
	// Reason is the rejection cause, empty on success.
	Reason error
}

// VerifyCode checks a code the client typed into the chat. Rejections are
// answered with a system message, not an error.
type VerifyCode struct {
	conversations *services.ConversationService
	messages      *services.MessageService
	identity      *services.IdentityService
	locks         *services.ConversationLocks
	notifier      ports.ConversationNotifier
	idGenerator   ports.IDGenerator
}

func NewVerifyCode(
	conversations *services.ConversationService,
	messages *services.MessageService,
	identity *services.IdentityService,
	locks *services.ConversationLocks,
	notifier ports.ConversationNotifier,
	idGenerator ports.IDGenerator,
) *VerifyCode {
	return &VerifyCode{
		conversations: conversations,
		messages:      messages,
		identity:      identity,
		locks:         locks,
		notifier:      notifier,
		idGenerator:   idGenerator,
	}
}

func (uc *VerifyCode) Execute(ctx context.Context, input VerifyCodeInput) (*VerifyCodeOutput, error) {
	ctx = context.WithoutCancel(ctx)

	if err := services.ValidateRequired(input.Code, "code"); err != nil {
		return nil, err
	}

	conv, err := uc.conversations.GetByRoom(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerUserID != input.Identity.UserID {
		return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied,
			"conversation belongs to another user", domain.CodeAuthorizationDenied)
	}

	unlock := uc.locks.Lock(conv.ID)
	defer unlock()

	// The contact registered in this conversation is the default.
	contact := models.NormalizeContact(input.Email, input.Phone)
	if contact.IsEmpty() {
		contact = models.NormalizeContact(conv.ContactEmail, conv.ContactPhone)
	}

	out := &VerifyCodeOutput{Conversation: conv}
	user, err := uc.identity.Verify(ctx, conv.ID, contact, input.Code)
	switch {
	case err == nil:
		out.Verified = true
		out.User = user
		if current, gerr := uc.conversations.Get(ctx, conv.ID); gerr == nil {
			conv = current
			out.Conversation = current
		}
	case isRejection(err):
		out.Reason = err
	default:
		return nil, err
	}

	out.Message = uc.sendResult(ctx, conv, err)
	if out.Verified {
		uc.notifier.NotifyConversationUpdated(conv)
	}
	return out, nil
}

// sendResult stores and broadcasts the confirmation or rejection. It is
// broadcast even when it cannot be stored.
func (uc *VerifyCode) sendResult(ctx context.Context, conv *models.Conversation, cause error) *models.Message {
	msg := models.NewSystemMessage(uc.idGenerator.GenerateMessageID(), conv.ID, verificationText(cause))
	if err := uc.messages.Append(ctx, services.SystemSender, conv, msg); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to store verification result")
	}
	uc.notifier.NotifyMessage(conv, msg)
	return msg
}

func isRejection(err error) bool {
	return errors.Is(err, domain.ErrInvalidCode) ||
		errors.Is(err, domain.ErrTooManyAttempts) ||
		errors.Is(err, domain.ErrVerificationExpired) ||
		errors.Is(err, domain.ErrVerificationNotFound) ||
		errors.Is(err, domain.ErrInvalidContact)
}

func verificationText(err error) string {
	switch {
	case err == nil:
		return "Contato verificado com sucesso. Seu cadastro está confirmado."
	case errors.Is(err, domain.ErrInvalidCode):
		return "Código inválido. Verifique o código recebido e tente novamente."
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "Número máximo de tentativas atingido. Solicite um novo código."
	case errors.Is(err, domain.ErrVerificationExpired):
		return "O código expirou. Solicite um novo código."
	case errors.Is(err, domain.ErrInvalidContact):
		return "Informe o e-mail ou telefone usado no cadastro."
	default:
		return "Não há verificação pendente para este contato."
	}
}
