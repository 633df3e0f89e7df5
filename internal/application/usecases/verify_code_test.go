package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

// pendingVerification registers ana@example.com on cv_1 and returns the code
// that was sent.
func pendingVerification(t *testing.T, f *fixture) string {
	t.Helper()
	conv := f.conversationIn(models.ConversationStatusActive)
	conv.ContactEmail = "ana@example.com"
	f.convRepo.put(conv)

	contact := models.NormalizeContact("ana@example.com", "")
	res, err := f.identity.Resolve(context.Background(), "Ana", contact)
	require.NoError(t, err)
	require.Equal(t, models.ResolutionCreatedProvisional, res.Outcome)
	return f.codeSender.last(contact)
}

func TestVerifyCode_SuccessLinksConversation(t *testing.T) {
	f := newFixture()
	code := pendingVerification(t, f)

	out, err := f.verifyCode.Execute(context.Background(), VerifyCodeInput{
		Identity: client("u1"),
		RoomID:   "room_u1_1",
		Code:     code,
	})
	require.NoError(t, err)

	assert.True(t, out.Verified)
	assert.NoError(t, out.Reason)
	require.NotNil(t, out.User)
	assert.True(t, out.User.IsVerified)
	assert.Equal(t, out.User.ID, f.convRepo.stored("cv_1").LinkedUserID)
	assert.Equal(t, out.User.ID, out.Conversation.LinkedUserID)

	assert.Equal(t, models.SenderSystem, out.Message.Sender)
	assert.Contains(t, out.Message.Text, "verificado")
	assert.Equal(t, []string{"receive-message", "conversation-updated"}, f.notifier.kinds())
}

func TestVerifyCode_RejectionIsAMessage(t *testing.T) {
	f := newFixture()
	code := pendingVerification(t, f)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	out, err := f.verifyCode.Execute(context.Background(), VerifyCodeInput{
		Identity: client("u1"),
		RoomID:   "room_u1_1",
		Code:     wrong,
		Email:    "ANA@example.com",
	})
	require.NoError(t, err)

	assert.False(t, out.Verified)
	assert.ErrorIs(t, out.Reason, domain.ErrInvalidCode)
	assert.Contains(t, out.Message.Text, "Código inválido")
	assert.Empty(t, f.convRepo.stored("cv_1").LinkedUserID)
	assert.Equal(t, []string{"receive-message"}, f.notifier.kinds())
	assert.Len(t, f.msgRepo.all(), 1, "the rejection is stored")
}

func TestVerifyCode_NoPendingVerification(t *testing.T) {
	f := newFixture()
	f.conversationIn(models.ConversationStatusActive)

	out, err := f.verifyCode.Execute(context.Background(), VerifyCodeInput{
		Identity: client("u1"),
		RoomID:   "room_u1_1",
		Code:     "123456",
		Phone:    "+55 11 98888-7777",
	})
	require.NoError(t, err)
	assert.ErrorIs(t, out.Reason, domain.ErrVerificationNotFound)
	assert.False(t, out.Verified)
}

func TestVerifyCode_Errors(t *testing.T) {
	f := newFixture()
	pendingVerification(t, f)

	_, err := f.verifyCode.Execute(context.Background(), VerifyCodeInput{Identity: client("u2"), RoomID: "room_u1_1", Code: "123456"})
	assert.ErrorIs(t, err, domain.ErrAuthorizationDenied)

	_, err = f.verifyCode.Execute(context.Background(), VerifyCodeInput{Identity: client("u1"), RoomID: "room_u1_1", Code: " "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Empty(t, f.notifier.kinds())
}
