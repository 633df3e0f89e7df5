package tools

import (
	"context"

	"github.com/longregen/counsel/internal/domain/models"
)

// ConversationStore is the slice of the conversation service tool handlers use.
type ConversationStore interface {
	Patch(ctx context.Context, id string, mutate func(*models.Conversation) error) (*models.Conversation, error)
	Transition(ctx context.Context, id string, to models.ConversationStatus, reason string, mutate func(*models.Conversation)) (*models.Conversation, error)
}

// IdentityResolver resolves registration contacts to users.
type IdentityResolver interface {
	Resolve(ctx context.Context, name string, contact models.Contact) (*models.Resolution, error)
	CreatePlaceholder(ctx context.Context, name, conversationID string) (*models.Resolution, error)
}

// NewIntakeRegistry wires the intake tool set.
func NewIntakeRegistry(conversations ConversationStore, identity IdentityResolver) *Registry {
	return NewRegistry(
		NewRegisterUser(conversations, identity),
		NewRequireLawyerAssistance(conversations),
		NewDetectCompletion(conversations),
		NewClassifyConversation(conversations),
	)
}
