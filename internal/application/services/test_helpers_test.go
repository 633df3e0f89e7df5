package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

// Shared mock implementations for testing

type mockIDGenerator struct {
	mu                  sync.Mutex
	conversationCounter int
	messageCounter      int
	userCounter         int
	roomCounter         int
}

func (m *mockIDGenerator) GenerateConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversationCounter++
	return fmt.Sprintf("cv_test%d", m.conversationCounter)
}

func (m *mockIDGenerator) GenerateMessageID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messageCounter++
	return fmt.Sprintf("cm_test%d", m.messageCounter)
}

func (m *mockIDGenerator) GenerateUserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userCounter++
	return fmt.Sprintf("cu_test%d", m.userCounter)
}

func (m *mockIDGenerator) GenerateRoomID(ownerUserID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomCounter++
	return fmt.Sprintf("room_%s_%d", ownerUserID, m.roomCounter)
}

// ============================================================================
// Conversation repository
// ============================================================================

type mockConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation

	// sequenceConflicts makes the next N creates fail with ErrSequenceConflict
	sequenceConflicts int
	// beforeUpdate runs inside Update before the status and version checks.
	// Whatever it changes counts as a write that committed first.
	beforeUpdate func(stored *models.Conversation)
	updateErr    error
	updates      int
	resetUnread  []string
}

func newMockConversationRepo() *mockConversationRepo {
	return &mockConversationRepo{conversations: make(map[string]*models.Conversation)}
}

func (m *mockConversationRepo) put(c *models.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.ID] = c.Clone()
}

func (m *mockConversationRepo) stored(id string) *models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversations[id].Clone()
}

func (m *mockConversationRepo) Create(_ context.Context, c *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sequenceConflicts > 0 {
		m.sequenceConflicts--
		return domain.ErrSequenceConflict
	}
	for _, existing := range m.conversations {
		if existing.OwnerUserID == c.OwnerUserID && existing.SequenceNumber == c.SequenceNumber {
			return domain.ErrSequenceConflict
		}
	}
	m.conversations[c.ID] = c.Clone()
	return nil
}

func (m *mockConversationRepo) GetByID(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return c.Clone(), nil
}

func (m *mockConversationRepo) GetByRoomID(_ context.Context, roomID string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.RoomID == roomID {
			return c.Clone(), nil
		}
	}
	return nil, domain.ErrConversationNotFound
}

func (m *mockConversationRepo) NextSequenceNumber(_ context.Context, owner string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 1
	for _, c := range m.conversations {
		if c.OwnerUserID == owner && c.SequenceNumber >= next {
			next = c.SequenceNumber + 1
		}
	}
	return next, nil
}

func (m *mockConversationRepo) ListActiveByOwner(_ context.Context, owner string) ([]*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Conversation
	for _, c := range m.conversations {
		if c.BelongsTo(owner) && c.IsActive {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber > out[j].SequenceNumber })
	return out, nil
}

func (m *mockConversationRepo) ListCases(_ context.Context, filter ports.CaseFilter) ([]*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Conversation
	for _, c := range m.conversations {
		if filter.LawyerNeeded != nil && c.LawyerNeeded != *filter.LawyerNeeded {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockConversationRepo) ListIdleSince(_ context.Context, statuses []models.ConversationStatus, before time.Time, limit int) ([]*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Conversation
	for _, c := range m.conversations {
		match := false
		for _, s := range statuses {
			if c.Status == s {
				match = true
			}
		}
		last := c.CreatedAt
		if c.LastMessageAt != nil {
			last = *c.LastMessageAt
		}
		if match && last.Before(before) && len(out) < limit {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (m *mockConversationRepo) Update(_ context.Context, c *models.Conversation, expected models.ConversationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.conversations[c.ID]
	if !ok {
		return domain.ErrConversationNotFound
	}
	if m.beforeUpdate != nil {
		hook := m.beforeUpdate
		m.beforeUpdate = nil
		hook(stored)
		stored.Version++
	}
	if stored.Status != expected || stored.Version != c.Version {
		return domain.ErrStaleConversation
	}
	m.updates++
	c.Version++
	m.conversations[c.ID] = c.Clone()
	return nil
}

func (m *mockConversationRepo) RecordActivity(_ context.Context, id string, at time.Time, unread bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	c.LastMessageAt = &at
	if unread {
		c.UnreadCount++
	}
	return nil
}

func (m *mockConversationRepo) ResetUnread(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[id]; ok {
		c.UnreadCount = 0
	}
	m.resetUnread = append(m.resetUnread, id)
	return nil
}

// ============================================================================
// Message repository
// ============================================================================

type mockMessageRepo struct {
	mu        sync.Mutex
	messages  []*models.Message
	createErr error
	listErr   error
}

func (m *mockMessageRepo) Create(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *msg
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *mockMessageRepo) GetByID(_ context.Context, id string) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ID == id {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (m *mockMessageRepo) ListByConversation(_ context.Context, conversationID string) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockMessageRepo) all() []*models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Message(nil), m.messages...)
}

// ============================================================================
// Identity
// ============================================================================

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*models.User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if (u.Email != "" && existing.Email == u.Email) || (u.Phone != "" && existing.Phone == u.Phone) {
			return domain.ErrInvalidContact
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *mockUserRepo) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Phone == phone })
}

func (m *mockUserRepo) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockUserRepo) Update(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return domain.ErrUserNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

type mockCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*models.VerificationCode
	now   func() time.Time
}

func newMockCodeRepo() *mockCodeRepo {
	return &mockCodeRepo{codes: make(map[string]*models.VerificationCode), now: time.Now}
}

func (m *mockCodeRepo) Save(_ context.Context, c *models.VerificationCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.codes[c.ContactKey] = &cp
	return nil
}

func (m *mockCodeRepo) Get(_ context.Context, key string) (*models.VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[key]
	if !ok {
		return nil, domain.ErrVerificationNotFound
	}
	if c.IsExpired(m.now()) {
		return nil, domain.ErrVerificationExpired
	}
	cp := *c
	return &cp, nil
}

func (m *mockCodeRepo) IncrementAttempts(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[key]
	if !ok {
		return 0, domain.ErrVerificationNotFound
	}
	prev := c.Attempts
	c.Attempts++
	return prev, nil
}

func (m *mockCodeRepo) MarkVerified(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[key]
	if !ok {
		return domain.ErrVerificationNotFound
	}
	c.Verified = true
	return nil
}

type mockCodeSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *mockCodeSender) SendVerificationCode(_ context.Context, contact models.Contact, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[contact.Key()] = code
	return nil
}

func (m *mockCodeSender) last(contact models.Contact) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[contact.Key()]
}

// ============================================================================
// Collaborators
// ============================================================================

type mockAttachmentService struct {
	mu    sync.Mutex
	byMsg map[string][]models.Attachment
	fail  map[string]bool
	calls int
}

func (m *mockAttachmentService) GetByMessageID(_ context.Context, id string) ([]models.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail[id] {
		return nil, fmt.Errorf("attachment service unavailable")
	}
	return m.byMsg[id], nil
}

type mockBillingNotifier struct {
	events chan ports.CaseEvent
}

func newMockBillingNotifier() *mockBillingNotifier {
	return &mockBillingNotifier{events: make(chan ports.CaseEvent, 10)}
}

func (m *mockBillingNotifier) NotifyCaseEvent(_ context.Context, e ports.CaseEvent) error {
	m.events <- e
	return nil
}

type mockNotifier struct {
	mu      sync.Mutex
	updated []*models.Conversation
}

func (m *mockNotifier) NotifyTypingStart(*models.Conversation) {}

func (m *mockNotifier) NotifyTypingStop(*models.Conversation) {}

func (m *mockNotifier) NotifyMessage(*models.Conversation, *models.Message) {}

func (m *mockNotifier) NotifyLawyerMessage(*models.Conversation, *models.Message) {}

func (m *mockNotifier) NotifyFeedbackPrompt(*models.Conversation, *models.FeedbackPrompt) {}

func (m *mockNotifier) NotifyConversationUpdated(c *models.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, c)
}

func (m *mockNotifier) updates() []*models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Conversation(nil), m.updated...)
}

// ============================================================================
// Fixture
// ============================================================================

type fixture struct {
	ids           *mockIDGenerator
	convRepo      *mockConversationRepo
	msgRepo       *mockMessageRepo
	attachments   *mockAttachmentService
	billing       *mockBillingNotifier
	notifier      *mockNotifier
	messages      *MessageService
	conversations *ConversationService
}

func newFixture() *fixture {
	f := &fixture{
		ids:         &mockIDGenerator{},
		convRepo:    newMockConversationRepo(),
		msgRepo:     &mockMessageRepo{},
		attachments: &mockAttachmentService{byMsg: map[string][]models.Attachment{}, fail: map[string]bool{}},
		billing:     newMockBillingNotifier(),
		notifier:    &mockNotifier{},
	}
	f.messages = NewMessageService(NewMessageAuthorizer(), f.msgRepo, f.convRepo, f.attachments)
	f.conversations = NewConversationService(f.convRepo, f.messages, f.ids, f.billing, f.notifier)
	return f
}

func client(id string) *models.ConnectionIdentity {
	return &models.ConnectionIdentity{UserID: id, IsAuthenticated: true, Role: models.RoleClient}
}

func lawyer(id string, permissions ...string) *models.ConnectionIdentity {
	return &models.ConnectionIdentity{UserID: id, IsAuthenticated: true, Role: models.RoleLawyer, Permissions: permissions}
}

func conversationIn(status models.ConversationStatus) *models.Conversation {
	c := models.NewConversation("cv_1", "room_u1_1", "u1", 1)
	c.Status = status
	return c
}
