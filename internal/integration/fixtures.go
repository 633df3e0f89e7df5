//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/longregen/counsel/internal/adapters/id"
	"github.com/longregen/counsel/internal/adapters/notify"
	"github.com/longregen/counsel/internal/adapters/postgres"
	"github.com/longregen/counsel/internal/adapters/redis"
	"github.com/longregen/counsel/internal/application/services"
	"github.com/longregen/counsel/internal/domain/models"
)

// Stack wires the services against real stores
type Stack struct {
	DB            *TestDB
	Conversations *services.ConversationService
	Messages      *services.MessageService
	Identity      *services.IdentityService
	ConvRepo      *postgres.ConversationRepository
	MessageRepo   *postgres.MessageRepository
	UserRepo      *postgres.UserRepository
	Codes         *capturingSender
	Notifier      *recordingNotifier
	IDs           *id.Generator
}

// NewStack builds the service graph the server uses, minus transport
func NewStack(t *testing.T, db *TestDB, rdb *goredis.Client) *Stack {
	t.Helper()

	convRepo := postgres.NewConversationRepository(db.Pool)
	messageRepo := postgres.NewMessageRepository(db.Pool)
	userRepo := postgres.NewUserRepository(db.Pool)
	idGen := id.New()
	notifier := &recordingNotifier{}
	codes := &capturingSender{codes: make(map[string]string)}

	messages := services.NewMessageService(services.NewMessageAuthorizer(), messageRepo, convRepo, nil)
	conversations := services.NewConversationService(convRepo, messages, idGen, notify.LogBillingNotifier{}, notifier)
	identity := services.NewIdentityService(userRepo, redis.NewVerificationCodeStore(rdb), codes, conversations, idGen).
		WithTransactions(postgres.NewTransactionManager(db.Pool))

	return &Stack{
		DB:            db,
		Conversations: conversations,
		Messages:      messages,
		Identity:      identity,
		ConvRepo:      convRepo,
		MessageRepo:   messageRepo,
		UserRepo:      userRepo,
		Codes:         codes,
		Notifier:      notifier,
		IDs:           idGen,
	}
}

// CreateUserRow inserts a user directly, bypassing the identity service
func (s *Stack) CreateUserRow(ctx context.Context, t *testing.T, name string, contact models.Contact, verified bool) *models.User {
	t.Helper()

	user := models.NewProvisionalUser(s.IDs.GenerateUserID(), name, contact)
	if verified {
		user.Activate()
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		t.Fatalf("failed to create user fixture: %v", err)
	}
	return user
}

// EscalatedCase creates an active conversation flagged for a lawyer
func (s *Stack) EscalatedCase(ctx context.Context, t *testing.T, owner string) *models.Conversation {
	t.Helper()

	conv, err := s.Conversations.Create(ctx, owner)
	if err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}
	conv = s.Conversations.Activate(ctx, conv)
	conv, err = s.Conversations.Patch(ctx, conv.ID, func(c *models.Conversation) error {
		c.LawyerNeeded = true
		c.Priority = models.PriorityHigh
		return nil
	})
	if err != nil {
		t.Fatalf("failed to escalate conversation: %v", err)
	}
	return conv
}

func staff(id string, role models.Role, permissions ...string) *models.ConnectionIdentity {
	return &models.ConnectionIdentity{UserID: id, IsAuthenticated: true, Role: role, Permissions: permissions}
}

func owner(id string) *models.ConnectionIdentity {
	return &models.ConnectionIdentity{UserID: id, IsAuthenticated: true, Role: models.RoleClient}
}

// capturingSender keeps the last code sent to each contact
type capturingSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *capturingSender) SendVerificationCode(_ context.Context, contact models.Contact, code string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[contact.Key()] = code
	return nil
}

func (c *capturingSender) CodeFor(contact models.Contact) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[contact.Key()]
}

// recordingNotifier counts conversation updates
type recordingNotifier struct {
	mu      sync.Mutex
	updates []models.ConversationStatus
}

func (n *recordingNotifier) NotifyTypingStart(*models.Conversation)                            {}
func (n *recordingNotifier) NotifyTypingStop(*models.Conversation)                             {}
func (n *recordingNotifier) NotifyMessage(*models.Conversation, *models.Message)               {}
func (n *recordingNotifier) NotifyLawyerMessage(*models.Conversation, *models.Message)         {}
func (n *recordingNotifier) NotifyFeedbackPrompt(*models.Conversation, *models.FeedbackPrompt) {}

func (n *recordingNotifier) NotifyConversationUpdated(c *models.Conversation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, c.Status)
}

func (n *recordingNotifier) Updates() []models.ConversationStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.ConversationStatus(nil), n.updates...)
}
