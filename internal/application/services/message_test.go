package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

func TestMessageService_AppendPersistsAndRecordsActivity(t *testing.T) {
	f := newFixture()
	conv := conversationIn(models.ConversationStatusActive)
	f.convRepo.put(conv)

	reply := models.NewAIMessage("cm_1", conv.ID, "Posso ajudar.")
	require.NoError(t, f.messages.Append(context.Background(), AISender, conv, reply))

	require.Len(t, f.msgRepo.all(), 1)
	stored := f.convRepo.stored(conv.ID)
	require.NotNil(t, stored.LastMessageAt)
	assert.Equal(t, 1, stored.UnreadCount, "assistant replies count as unread for the owner")
	assert.Equal(t, 1, conv.UnreadCount)
}

func TestMessageService_AppendUserMessageNotUnread(t *testing.T) {
	f := newFixture()
	conv := conversationIn(models.ConversationStatusOpen)
	f.convRepo.put(conv)

	msg := models.NewUserMessage("cm_1", conv.ID, "u1", "Olá")
	require.NoError(t, f.messages.Append(context.Background(), UserSender(client("u1")), conv, msg))
	assert.Equal(t, 0, f.convRepo.stored(conv.ID).UnreadCount)
}

func TestMessageService_AppendDenied(t *testing.T) {
	f := newFixture()
	conv := conversationIn(models.ConversationStatusAssignedToLawyer)
	conv.AssignedLawyerID = "l1"
	f.convRepo.put(conv)

	err := f.messages.Append(context.Background(), AISender, conv, models.NewAIMessage("cm_1", conv.ID, "hi"))
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
	assert.Equal(t, domain.CodeAuthorizationDenied, domain.ErrorCode(err))
	assert.Empty(t, f.msgRepo.all(), "denied messages are never stored")
}

func TestMessageService_AppendRequiresClaimFirst(t *testing.T) {
	f := newFixture()
	conv := conversationIn(models.ConversationStatusActive)
	conv.LawyerNeeded = true
	f.convRepo.put(conv)

	msg := models.NewMessage("cm_1", conv.ID, models.SenderLawyer, "l1", "Sou o advogado", nil)
	err := f.messages.Append(context.Background(), LawyerSender(lawyer("l1")), conv, msg)
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)
}

func TestMessageService_AppendEmpty(t *testing.T) {
	f := newFixture()
	conv := conversationIn(models.ConversationStatusOpen)

	err := f.messages.Append(context.Background(), UserSender(client("u1")), conv, models.NewUserMessage("cm_1", conv.ID, "u1", "   "))
	assert.ErrorIs(t, err, domain.ErrEmptyContent)

	withFile := models.NewUserMessage("cm_2", conv.ID, "u1", "")
	withFile.Attachments = []models.Attachment{{URI: "s3://b/f.png", MimeType: "image/png"}}
	f.convRepo.put(conv)
	assert.NoError(t, f.messages.Append(context.Background(), UserSender(client("u1")), conv, withFile))
}

func TestMessageService_AppendPersistenceFailure(t *testing.T) {
	f := newFixture()
	conv := conversationIn(models.ConversationStatusOpen)
	f.convRepo.put(conv)
	f.msgRepo.createErr = errors.New("disk full")

	err := f.messages.Append(context.Background(), UserSender(client("u1")), conv, models.NewUserMessage("cm_1", conv.ID, "u1", "Olá"))
	assert.ErrorIs(t, err, domain.ErrPersistenceFailure)
	assert.Equal(t, domain.CodePersistenceFailure, domain.ErrorCode(err))
}

func TestMessageService_RecordHiddenSwallowsFailure(t *testing.T) {
	f := newFixture()
	f.msgRepo.createErr = errors.New("disk full")

	call := models.NewMessage("cm_1", "cv_1", models.SenderAI, "", "", models.FunctionCall{Name: "register_user"})
	f.messages.RecordHidden(context.Background(), call)
	assert.Empty(t, f.msgRepo.all())
}
