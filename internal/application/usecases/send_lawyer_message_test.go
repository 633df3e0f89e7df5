package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

func assignedCase(f *fixture, lawyerID string) *models.Conversation {
	conv := f.conversationIn(models.ConversationStatusActive)
	conv.LawyerNeeded = true
	if lawyerID != "" {
		if err := conv.AssignLawyer(lawyerID); err != nil {
			panic(err)
		}
	}
	f.convRepo.put(conv)
	return conv
}

func TestSendLawyerMessage_AssignedLawyerPosts(t *testing.T) {
	f := newFixture()
	assignedCase(f, "l1")

	out, err := f.sendLawyerMessage.Execute(context.Background(), SendLawyerMessageInput{
		Identity: lawyer("l1"),
		RoomID:   "room_u1_1",
		Text:     "Boa tarde, sou seu advogado.",
	})
	require.NoError(t, err)

	assert.False(t, out.Claimed)
	assert.Equal(t, models.SenderLawyer, out.Message.Sender)
	assert.Equal(t, "l1", out.Message.SenderID)
	assert.Equal(t, []string{"receive-message", "receive-lawyer-message"}, f.notifier.kinds())
	assert.Equal(t, 1, f.convRepo.stored("cv_1").UnreadCount)
}

func TestSendLawyerMessage_FirstMessageClaimsCase(t *testing.T) {
	f := newFixture()
	assignedCase(f, "")

	out, err := f.sendLawyerMessage.Execute(context.Background(), SendLawyerMessageInput{
		Identity: lawyer("l2"),
		RoomID:   "room_u1_1",
		Text:     "Assumo o caso.",
	})
	require.NoError(t, err)

	assert.True(t, out.Claimed)
	assert.Equal(t, models.ConversationStatusAssignedToLawyer, out.Conversation.Status)
	stored := f.convRepo.stored("cv_1")
	assert.Equal(t, "l2", stored.AssignedLawyerID)
	assert.Equal(t, models.ConversationStatusAssignedToLawyer, stored.Status)
	assert.Equal(t, []string{"conversation-updated", "receive-message", "receive-lawyer-message"}, f.notifier.kinds())

	select {
	case e := <-f.billing.events:
		assert.Equal(t, ports.CaseEventClaimed, e.Type)
		assert.Equal(t, "l2", e.LawyerID)
	case <-time.After(time.Second):
		t.Fatal("billing was not notified of the claim")
	}
}

func TestSendLawyerMessage_Denied(t *testing.T) {
	tests := []struct {
		name     string
		assignee string
		needed   bool
		identity *models.ConnectionIdentity
		room     string
		wantErr  error
	}{
		{"another lawyer's case", "l1", true, lawyer("l2"), "room_u1_1", domain.ErrAuthorizationDenied},
		{"case nobody asked a lawyer for", "", false, lawyer("l1"), "room_u1_1", domain.ErrAuthorizationDenied},
		{"client identity", "l1", true, client("u1"), "room_u1_1", domain.ErrAuthorizationDenied},
		{"moderator without permission", "l1", true, &models.ConnectionIdentity{UserID: "m1", Role: models.RoleModerator}, "room_u1_1", domain.ErrAuthorizationDenied},
		{"unknown room", "l1", true, lawyer("l1"), "room_nobody_9", domain.ErrConversationNotFound},
		{"malformed room", "l1", true, lawyer("l1"), "cv_1", domain.ErrInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			conv := assignedCase(f, tt.assignee)
			conv.LawyerNeeded = tt.needed
			f.convRepo.put(conv)

			_, err := f.sendLawyerMessage.Execute(context.Background(), SendLawyerMessageInput{
				Identity: tt.identity,
				RoomID:   tt.room,
				Text:     "olá",
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.msgRepo.all())
			assert.Empty(t, f.notifier.kinds())
		})
	}
}

func TestSendLawyerMessage_ModeratorPosts(t *testing.T) {
	f := newFixture()
	assignedCase(f, "l1")
	moderator := &models.ConnectionIdentity{UserID: "m1", IsAuthenticated: true, Role: models.RoleModerator, Permissions: []string{models.PermissionModerate}}

	out, err := f.sendLawyerMessage.Execute(context.Background(), SendLawyerMessageInput{
		Identity: moderator,
		RoomID:   "room_u1_1",
		Text:     "Mensagem da moderação.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SenderModerator, out.Message.Sender)
	assert.False(t, out.Claimed)
}
