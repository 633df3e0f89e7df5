package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/adapters/http/dto"
	"github.com/longregen/counsel/internal/application/services"
	"github.com/longregen/counsel/internal/application/usecases"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/pkg/protocol"
)

// dispatch runs one client event. A returned error is reported to the sender
// as an error frame and the session stays up.
func (g *Gateway) dispatch(ctx context.Context, s *Session, frame *protocol.Frame) error {
	switch frame.Event {
	case protocol.EventJoinRoom:
		return g.onJoinRoom(ctx, s)
	case protocol.EventCreateNewConversation:
		return g.onCreateConversation(ctx, s)
	case protocol.EventSwitchConversation:
		return g.onSwitchConversation(ctx, s, frame)
	case protocol.EventSendMessage:
		return g.onSendMessage(ctx, s, frame)
	case protocol.EventVerifyCode:
		return g.onVerifyCode(ctx, s, frame)
	case protocol.EventSendLawyerMessage:
		return g.onSendLawyerMessage(ctx, s, frame)
	case protocol.EventJoinCase:
		return g.onJoinCase(ctx, s, frame)
	case protocol.EventLeaveRoom:
		return g.onLeaveRoom(s, frame)
	case protocol.EventClaimCase:
		return g.onClaimCase(ctx, s, frame)
	case protocol.EventCloseCase:
		return g.onCloseCase(ctx, s, frame)
	case protocol.EventCloseConversation:
		return g.onCloseConversation(ctx, s, frame)
	default:
		return domain.NewDomainErrorWithCode(domain.ErrInvalidInput, "unknown event "+string(frame.Event), protocol.ErrCodeUnknownEvent)
	}
}

func bind(frame *protocol.Frame, v interface{}) error {
	if err := frame.Bind(v); err != nil {
		return domain.NewDomainErrorWithCode(domain.ErrInvalidInput, err.Error(), protocol.ErrCodeMalformedData)
	}
	return nil
}

func (g *Gateway) onJoinRoom(ctx context.Context, s *Session) error {
	identity := s.Identity()
	if err := services.ValidateID(identity.UserID, "user"); err != nil {
		return err
	}

	convs, err := g.conversations.JoinRoom(ctx, identity)
	if err != nil {
		return err
	}

	g.hub.Join(s, models.UserRoomID(identity.UserID))
	for _, c := range convs {
		g.hub.Join(s, c.RoomID)
	}

	s.push(protocol.EventConversationsLoaded, "", protocol.ConversationsLoaded{
		Conversations: dto.ConversationsFromModels(convs),
		ActiveRooms:   dto.RoomIDs(convs),
	})
	return nil
}

func (g *Gateway) onCreateConversation(ctx context.Context, s *Session) error {
	identity := s.Identity()
	if identity.Role != models.RoleClient {
		return domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "only clients open conversations", domain.CodeAuthorizationDenied)
	}

	conv, err := g.conversations.Create(ctx, identity.UserID)
	if err != nil {
		return err
	}
	g.hub.Join(s, conv.RoomID)
	s.push(protocol.EventNewConversationCreated, conv.ID, protocol.NewConversationCreated{
		Conversation: dto.ConversationFromModel(conv),
	})

	// Other devices of the same user pick up the new room from the list
	convs, err := g.conversations.ListForOwner(ctx, identity.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", identity.UserID).Msg("failed to reload conversation list")
		return nil
	}
	g.hub.Broadcast(models.UserRoomID(identity.UserID), protocol.EventConversationsLoaded, "", protocol.ConversationsLoaded{
		Conversations: dto.ConversationsFromModels(convs),
		ActiveRooms:   dto.RoomIDs(convs),
	})
	return nil
}

func (g *Gateway) onSwitchConversation(ctx context.Context, s *Session, frame *protocol.Frame) error {
	var body protocol.SwitchConversation
	if err := bind(frame, &body); err != nil {
		return err
	}
	if body.ConversationID == "" {
		body.ConversationID = frame.ConversationID
	}

	conv, msgs, err := g.conversations.Switch(ctx, s.Identity(), body.ConversationID)
	if err != nil {
		return err
	}

	owner := conv.OwnerUserID
	if identity := s.Identity(); conv.BelongsTo(identity.UserID) {
		owner = identity.UserID
	}
	convs, err := g.conversations.ListForOwner(ctx, owner)
	if err != nil {
		return err
	}

	s.push(protocol.EventConversationSwitched, conv.ID, protocol.ConversationSwitched{
		ConversationID: conv.ID,
		Messages:       dto.MessagesFromModels(msgs),
		Conversations:  dto.ConversationsFromModels(convs),
	})
	return nil
}

func (g *Gateway) onSendMessage(ctx context.Context, s *Session, frame *protocol.Frame) error {
	var body protocol.SendMessage
	if err := bind(frame, &body); err != nil {
		return err
	}
	if body.ConversationID == "" {
		body.ConversationID = frame.ConversationID
	}

	_, err := g.sendMessage.Execute(ctx, usecases.SendMessageInput{
		Identity:       s.Identity(),
		ConversationID: body.ConversationID,
		Text:           body.Text,
		Attachments:    dto.AttachmentsToModels(body.Attachments),
	})
	return err
}

func (g *Gateway) onVerifyCode(ctx context.Context, s *Session, frame *protocol.Frame) error {
	var body protocol.VerifyCode
	if err := bind(frame, &body); err != nil {
		return err
	}

	_, err := g.verifyCode.Execute(ctx, usecases.VerifyCodeInput{
		Identity: s.Identity(),
		RoomID:   body.RoomID,
		Code:     body.Code,
		Email:    body.Email,
		Phone:    body.Phone,
	})
	return err
}

func (g *Gateway) onSendLawyerMessage(ctx context.Context, s *Session, frame *protocol.Frame) error {
	var body protocol.SendLawyerMessage
	if err := bind(frame, &body); err != nil {
		return err
	}

	out, err := g.sendLawyerMessage.Execute(ctx, usecases.SendLawyerMessageInput{
		Identity: s.Identity(),
		RoomID:   body.RoomID,
		Text:     body.Message,
	})
	if err != nil {
		return err
	}
	if out.Claimed {
		g.followCase(s, out.Conversation.RoomID)
	}
	return nil
}

func (g *Gateway) onJoinCase(ctx context.Context, s *Session, frame *protocol.Frame) error {
	conv, err := g.caseFromFrame(ctx, frame)
	if err != nil {
		return err
	}
	if !s.Identity().Can(models.ActionJoinCase, conv) {
		return domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "case is not open to this identity", domain.CodeAuthorizationDenied)
	}

	g.followCase(s, conv.RoomID)
	s.push(protocol.EventConversationUpdated, conv.ID, protocol.ConversationUpdated{
		Conversation: dto.ConversationFromModel(conv),
	})
	return nil
}

func (g *Gateway) onLeaveRoom(s *Session, frame *protocol.Frame) error {
	var body protocol.RoomRef
	if err := bind(frame, &body); err != nil {
		return err
	}
	if err := services.ValidateRequired(body.RoomID, "room"); err != nil {
		return err
	}

	g.hub.Leave(s, body.RoomID)
	if s.Identity().Role.IsStaff() {
		g.hub.Leave(s, models.LawyerRoomID(body.RoomID))
	}
	return nil
}

func (g *Gateway) onClaimCase(ctx context.Context, s *Session, frame *protocol.Frame) error {
	conv, err := g.caseFromFrame(ctx, frame)
	if err != nil {
		return err
	}

	claimed, err := g.conversations.Claim(ctx, s.Identity(), conv.ID)
	if err != nil {
		return err
	}
	g.followCase(s, claimed.RoomID)
	return nil
}

func (g *Gateway) onCloseCase(ctx context.Context, s *Session, frame *protocol.Frame) error {
	var body protocol.CloseCase
	if err := bind(frame, &body); err != nil {
		return err
	}
	conv, err := g.conversations.GetByRoom(ctx, body.RoomID)
	if err != nil {
		return err
	}

	_, err = g.conversations.Close(ctx, s.Identity(), conv.ID, body.ResolutionNote)
	return err
}

func (g *Gateway) onCloseConversation(ctx context.Context, s *Session, frame *protocol.Frame) error {
	var body protocol.CloseConversation
	if err := bind(frame, &body); err != nil {
		return err
	}
	if body.ConversationID == "" {
		body.ConversationID = frame.ConversationID
	}

	// The owner's devices learn the new status through the user room
	if _, err := g.conversations.Abandon(ctx, s.Identity(), body.ConversationID); err != nil {
		return fmt.Errorf("close conversation %s: %w", body.ConversationID, err)
	}
	return nil
}

// caseFromFrame loads the conversation named by a RoomRef body.
func (g *Gateway) caseFromFrame(ctx context.Context, frame *protocol.Frame) (*models.Conversation, error) {
	var body protocol.RoomRef
	if err := bind(frame, &body); err != nil {
		return nil, err
	}
	return g.conversations.GetByRoom(ctx, body.RoomID)
}

// followCase subscribes a staff session to a case room and its lawyer room.
func (g *Gateway) followCase(s *Session, roomID string) {
	g.hub.Join(s, roomID)
	g.hub.Join(s, models.LawyerRoomID(roomID))
}
