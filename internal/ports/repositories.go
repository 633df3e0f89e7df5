package ports

import (
	"context"
	"time"

	"github.com/longregen/counsel/internal/domain/models"
)

// ConversationRepository defines operations for conversation persistence
type ConversationRepository interface {
	// Create inserts a new conversation. A clash on (owner, sequence number)
	// returns domain.ErrSequenceConflict so the caller can allocate again.
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	GetByRoomID(ctx context.Context, roomID string) (*models.Conversation, error)
	NextSequenceNumber(ctx context.Context, ownerUserID string) (int, error)
	// ListActiveByOwner includes conversations linked to the user after a
	// contact verification.
	ListActiveByOwner(ctx context.Context, ownerUserID string) ([]*models.Conversation, error)
	ListCases(ctx context.Context, filter CaseFilter) ([]*models.Conversation, error)
	ListIdleSince(ctx context.Context, statuses []models.ConversationStatus, before time.Time, limit int) ([]*models.Conversation, error)

	// Update writes the conversation only if its stored status still equals
	// expected and no other write landed since it was read (same Version).
	// Otherwise it returns domain.ErrStaleConversation and writes nothing.
	// On success the conversation's Version is advanced.
	Update(ctx context.Context, conversation *models.Conversation, expected models.ConversationStatus) error

	// RecordActivity bumps last_message_at and, for messages the owner has not
	// seen yet, the unread counter.
	RecordActivity(ctx context.Context, id string, at time.Time, unread bool) error
	ResetUnread(ctx context.Context, id string) error
}

// CaseFilter narrows the staff case queue.
type CaseFilter struct {
	LawyerNeeded     *bool
	AssignedLawyerID string
	Statuses         []models.ConversationStatus
	Limit            int
	Offset           int
}

// MessageRepository defines operations for message persistence
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListByConversation returns every message, hidden ones included, oldest first.
	ListByConversation(ctx context.Context, conversationID string) ([]*models.Message, error)
}

// UserRepository defines operations for contact identities
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// VerificationCodeRepository stores one pending code per contact key.
// Codes disappear on their own once their TTL elapses.
type VerificationCodeRepository interface {
	Save(ctx context.Context, code *models.VerificationCode) error
	Get(ctx context.Context, contactKey string) (*models.VerificationCode, error)
	// IncrementAttempts atomically adds one attempt and returns the count
	// recorded before this call.
	IncrementAttempts(ctx context.Context, contactKey string) (int, error)
	MarkVerified(ctx context.Context, contactKey string) error
}

// TransactionManager runs fn in one transaction. Repositories called with
// the ctx passed to fn join it; a non-nil error rolls everything back.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IDGenerator generates unique IDs for entities
type IDGenerator interface {
	// GenerateConversationID generates a new conversation ID (cv_xxx)
	GenerateConversationID() string

	// GenerateMessageID generates a new message ID (cm_xxx)
	GenerateMessageID() string

	// GenerateUserID generates a new contact identity ID (cu_xxx)
	GenerateUserID() string

	// GenerateRoomID derives a room name from the owner and a monotonic token
	GenerateRoomID(ownerUserID string) string
}
