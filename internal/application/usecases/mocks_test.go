package usecases

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/longregen/counsel/internal/application/services"
	"github.com/longregen/counsel/internal/application/tools"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

// ============================================================================
// Common Mock implementations shared across tests
// ============================================================================

type mockIDGenerator struct {
	mu      sync.Mutex
	counter int
}

func (m *mockIDGenerator) next(prefix string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("%s_test%d", prefix, m.counter)
}

func (m *mockIDGenerator) GenerateConversationID() string { return m.next("cv") }

func (m *mockIDGenerator) GenerateMessageID() string { return m.next("cm") }

func (m *mockIDGenerator) GenerateUserID() string { return m.next("cu") }

func (m *mockIDGenerator) GenerateRoomID(owner string) string { return m.next("room_" + owner) }

// mockConversationRepo keeps conversations in memory and honors the
// conditional status write.
type mockConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	getErr        error
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
	if m.getErr != nil {
		return nil, m.getErr
	}
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

func (m *mockConversationRepo) ListCases(_ context.Context, _ ports.CaseFilter) ([]*models.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) ListIdleSince(context.Context, []models.ConversationStatus, time.Time, int) ([]*models.Conversation, error) {
	return nil, nil
}

func (m *mockConversationRepo) Update(_ context.Context, c *models.Conversation, expected models.ConversationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.conversations[c.ID]
	if !ok {
		return domain.ErrConversationNotFound
	}
	if stored.Status != expected || stored.Version != c.Version {
		return domain.ErrStaleConversation
	}
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
	return nil
}

// mockMessageRepo is an append-only in-memory message log
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
	cp.Attachments = nil
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

func (m *mockMessageRepo) add(msg *models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mockMessageRepo) all() []*models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Message(nil), m.messages...)
}

func (m *mockMessageRepo) byKind(kind models.PayloadKind) []*models.Message {
	var out []*models.Message
	for _, msg := range m.all() {
		if msg.Payload.Kind() == kind {
			out = append(out, msg)
		}
	}
	return out
}

// ============================================================================
// Identity mocks
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
	return m.find(func(u *models.User) bool { return u.ID == id })
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
}

func newMockCodeRepo() *mockCodeRepo {
	return &mockCodeRepo{codes: make(map[string]*models.VerificationCode)}
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
	if c.IsExpired(time.Now()) {
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
}

func (m *mockCodeSender) SendVerificationCode(_ context.Context, contact models.Contact, code string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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
}

func (m *mockAttachmentService) GetByMessageID(_ context.Context, id string) ([]models.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byMsg[id], nil
}

type mockBillingNotifier struct {
	events chan ports.CaseEvent
}

func (m *mockBillingNotifier) NotifyCaseEvent(_ context.Context, e ports.CaseEvent) error {
	select {
	case m.events <- e:
	default:
	}
	return nil
}

// mockLLMService replays scripted responses and records every request
type mockLLMService struct {
	mu        sync.Mutex
	responses []*ports.LLMResponse
	err       error
	requests  [][]ports.LLMMessage
	tools     []ports.LLMTool
	// onGenerate runs before the response is returned
	onGenerate func()
}

func (m *mockLLMService) Generate(_ context.Context, messages []ports.LLMMessage, tools []ports.LLMTool) (*ports.LLMResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, messages)
	m.tools = tools
	hook := m.onGenerate
	var resp *ports.LLMResponse
	if len(m.responses) > 0 {
		resp = m.responses[0]
		m.responses = m.responses[1:]
	}
	err := m.err
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &ports.LLMResponse{Content: "Olá! Como posso ajudar?"}
	}
	return resp, nil
}

func (m *mockLLMService) lastRequest() []ports.LLMMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func (m *mockLLMService) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// notifyEvent is one call recorded by mockNotifier
type notifyEvent struct {
	kind         string
	conversation *models.Conversation
	message      *models.Message
	prompt       *models.FeedbackPrompt
}

type mockNotifier struct {
	mu     sync.Mutex
	events []notifyEvent
}

func (m *mockNotifier) record(e notifyEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *mockNotifier) NotifyTypingStart(c *models.Conversation) {
	m.record(notifyEvent{kind: "typing-start", conversation: c})
}

func (m *mockNotifier) NotifyTypingStop(c *models.Conversation) {
	m.record(notifyEvent{kind: "typing-stop", conversation: c})
}

func (m *mockNotifier) NotifyMessage(c *models.Conversation, msg *models.Message) {
	m.record(notifyEvent{kind: "receive-message", conversation: c, message: msg})
}

func (m *mockNotifier) NotifyLawyerMessage(c *models.Conversation, msg *models.Message) {
	m.record(notifyEvent{kind: "receive-lawyer-message", conversation: c, message: msg})
}

func (m *mockNotifier) NotifyConversationUpdated(c *models.Conversation) {
	m.record(notifyEvent{kind: "conversation-updated", conversation: c})
}

func (m *mockNotifier) NotifyFeedbackPrompt(c *models.Conversation, p *models.FeedbackPrompt) {
	m.record(notifyEvent{kind: "show-feedback-modal", conversation: c, prompt: p})
}

func (m *mockNotifier) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.kind
	}
	return out
}

func (m *mockNotifier) ofKind(kind string) []notifyEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notifyEvent
	for _, e := range m.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================================
// Fixture
// ============================================================================

type fixture struct {
	ids         *mockIDGenerator
	convRepo    *mockConversationRepo
	msgRepo     *mockMessageRepo
	users       *mockUserRepo
	codes       *mockCodeRepo
	codeSender  *mockCodeSender
	attachments *mockAttachmentService
	billing     *mockBillingNotifier
	notifier    *mockNotifier
	llm         *mockLLMService

	authorizer    *services.MessageAuthorizer
	messages      *services.MessageService
	conversations *services.ConversationService
	identity      *services.IdentityService
	locks         *services.ConversationLocks

	generateReply     *GenerateReply
	sendMessage       *SendMessage
	sendLawyerMessage *SendLawyerMessage
	verifyCode        *VerifyCode
}

func newFixture() *fixture {
	f := &fixture{
		ids:         &mockIDGenerator{},
		convRepo:    newMockConversationRepo(),
		msgRepo:     &mockMessageRepo{},
		users:       newMockUserRepo(),
		codes:       newMockCodeRepo(),
		codeSender:  &mockCodeSender{},
		attachments: &mockAttachmentService{byMsg: map[string][]models.Attachment{}},
		billing:     &mockBillingNotifier{events: make(chan ports.CaseEvent, 10)},
		notifier:    &mockNotifier{},
		llm:         &mockLLMService{},
		authorizer:  services.NewMessageAuthorizer(),
		locks:       services.NewConversationLocks(),
	}
	f.messages = services.NewMessageService(f.authorizer, f.msgRepo, f.convRepo, f.attachments)
	f.conversations = services.NewConversationService(f.convRepo, f.messages, f.ids, f.billing, f.notifier)
	f.identity = services.NewIdentityService(f.users, f.codes, f.codeSender, f.conversations, f.ids)

	registry := tools.NewIntakeRegistry(f.conversations, f.identity)
	f.generateReply = NewGenerateReply(f.conversations, f.messages, f.attachments, f.llm, registry, f.notifier, f.ids)
	f.sendMessage = NewSendMessage(f.conversations, f.messages, f.locks, f.generateReply, f.notifier, f.ids)
	f.sendLawyerMessage = NewSendLawyerMessage(f.conversations, f.messages, f.authorizer, f.locks, f.notifier, f.ids)
	f.verifyCode = NewVerifyCode(f.conversations, f.messages, f.identity, f.locks, f.notifier, f.ids)
	return f
}

func client(id string) *models.ConnectionIdentity {
	return &models.ConnectionIdentity{UserID: id, IsAuthenticated: true, Role: models.RoleClient}
}

func lawyer(id string, permissions ...string) *models.ConnectionIdentity {
	return &models.ConnectionIdentity{UserID: id, IsAuthenticated: true, Role: models.RoleLawyer, Permissions: permissions}
}

// conversationIn stores cv_1, owned by u1, in the given status.
func (f *fixture) conversationIn(status models.ConversationStatus) *models.Conversation {
	c := models.NewConversation("cv_1", "room_u1_1", "u1", 1)
	c.Status = status
	f.convRepo.put(c)
	return c
}

func toolCall(id, name string, args map[string]any) *ports.LLMToolCall {
	return &ports.LLMToolCall{ID: id, Name: name, Arguments: args}
}
