package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/longregen/counsel/internal/adapters/http/middleware"
	"github.com/longregen/counsel/internal/application/usecases"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

// setURLParam adds a URL parameter to the request context (chi router style)
func setURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// withIdentity attaches an identity the way the auth middleware does
func withIdentity(req *http.Request, identity *models.ConnectionIdentity) *http.Request {
	return req.WithContext(middleware.WithIdentity(req.Context(), identity))
}

func client(id string) *models.ConnectionIdentity {
	return &models.ConnectionIdentity{UserID: id, IsAuthenticated: true, Role: models.RoleClient}
}

func lawyer(id string) *models.ConnectionIdentity {
	return &models.ConnectionIdentity{UserID: id, IsAuthenticated: true, Role: models.RoleLawyer}
}

// =============================================================================
// Authenticator
// =============================================================================

// tokenAuth treats the token as "<role>:<userId>"
type tokenAuth struct{}

func (tokenAuth) Authenticate(r *http.Request) (*models.ConnectionIdentity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return nil, domain.ErrAuthRequired
	}
	role, userID, ok := strings.Cut(token, ":")
	if !ok || userID == "" {
		return nil, domain.NewDomainErrorWithCode(domain.ErrInvalidToken, "token malformed", domain.CodeAuthError)
	}
	return &models.ConnectionIdentity{UserID: userID, IsAuthenticated: true, Role: models.ParseRole(role)}, nil
}

// =============================================================================
// Conversation manager
// =============================================================================

type fakeConversations struct {
	mu         sync.Mutex
	convs      map[string]*models.Conversation
	messages   map[string][]*models.Message
	err        error
	closed     []string
	lastFilter ports.CaseFilter
}

func newFakeConversations(convs ...*models.Conversation) *fakeConversations {
	f := &fakeConversations{
		convs:    make(map[string]*models.Conversation),
		messages: make(map[string][]*models.Message),
	}
	for _, c := range convs {
		f.convs[c.ID] = c
	}
	return f
}

func testConversation(id, roomID, owner string) *models.Conversation {
	c := models.NewConversation(id, roomID, owner, 1)
	c.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return c
}

func (f *fakeConversations) byRoom(roomID string) *models.Conversation {
	for _, c := range f.convs {
		if c.RoomID == roomID {
			return c
		}
	}
	return nil
}

func (f *fakeConversations) GetByRoom(_ context.Context, roomID string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.byRoom(roomID); c != nil {
		return c, nil
	}
	return nil, domain.ErrConversationNotFound
}

func (f *fakeConversations) GetForViewer(_ context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok || !identity.Can(models.ActionViewConversation, c) {
		return nil, domain.ErrConversationNotFound
	}
	return c, nil
}

func (f *fakeConversations) ListForOwner(_ context.Context, owner string) ([]*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Conversation
	for _, c := range f.convs {
		if c.OwnerUserID == owner {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeConversations) JoinRoom(ctx context.Context, identity *models.ConnectionIdentity) ([]*models.Conversation, error) {
	return f.ListForOwner(ctx, identity.UserID)
}

func (f *fakeConversations) Create(_ context.Context, owner string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.convs) + 1
	id := fmt.Sprintf("cv_new%d", n)
	c := testConversation(id, fmt.Sprintf("room_%s_new%d", owner, n), owner)
	f.convs[id] = c
	return c, nil
}

func (f *fakeConversations) Switch(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, []*models.Message, error) {
	c, err := f.GetForViewer(ctx, identity, id)
	if err != nil {
		return nil, nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c.UnreadCount = 0
	return c, f.messages[id], nil
}

func (f *fakeConversations) Claim(_ context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	if !identity.Can(models.ActionClaimCase, c) {
		return nil, domain.ErrCaseAlreadyClaimed
	}
	if err := c.AssignLawyer(identity.UserID); err != nil {
		return nil, err
	}
	return c, nil
}

func (f *fakeConversations) Close(_ context.Context, identity *models.ConnectionIdentity, id, note string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	if !identity.Can(models.ActionCloseCase, c) {
		return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "not your case", domain.CodeAuthorizationDenied)
	}
	if err := c.Close(note); err != nil {
		return nil, err
	}
	f.closed = append(f.closed, id)
	return c, nil
}

func (f *fakeConversations) Reopen(_ context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	if !identity.Can(models.ActionReopenCase, c) {
		return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "reopen denied", domain.CodeAuthorizationDenied)
	}
	if err := c.Reopen(); err != nil {
		return nil, domain.NewDomainError(domain.ErrInvalidStatusTransition, err.Error())
	}
	return c, nil
}

func (f *fakeConversations) Abandon(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error) {
	c, err := f.GetForViewer(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c.Status = models.ConversationStatusAbandoned
	return c, nil
}

func (f *fakeConversations) ListCases(_ context.Context, identity *models.ConnectionIdentity, filter ports.CaseFilter) ([]*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	if !identity.Can(models.ActionViewCaseQueue, nil) {
		return nil, domain.NewDomainErrorWithCode(domain.ErrAuthorizationDenied, "case queue is staff only", domain.CodeAuthorizationDenied)
	}
	var out []*models.Conversation
	for _, c := range f.convs {
		if filter.LawyerNeeded != nil && c.LawyerNeeded != *filter.LawyerNeeded {
			continue
		}
		if identity.Can(models.ActionViewConversation, c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// =============================================================================
// Use cases
// =============================================================================

type fakeSendMessage struct {
	mu     sync.Mutex
	inputs []usecases.SendMessageInput
	err    error
	// holdFirst, when set, keeps the first turn running until it is closed.
	holdFirst chan struct{}
	started   chan struct{}
}

func (f *fakeSendMessage) Execute(_ context.Context, in usecases.SendMessageInput) (*usecases.SendMessageOutput, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	first := len(f.inputs) == 1
	err := f.err
	f.mu.Unlock()

	if first && f.holdFirst != nil {
		if f.started != nil {
			close(f.started)
		}
		<-f.holdFirst
	}
	if err != nil {
		return nil, err
	}
	return &usecases.SendMessageOutput{}, nil
}

func (f *fakeSendMessage) received() []usecases.SendMessageInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usecases.SendMessageInput(nil), f.inputs...)
}

type fakeSendLawyerMessage struct {
	out *usecases.SendLawyerMessageOutput
	err error
}

func (f *fakeSendLawyerMessage) Execute(_ context.Context, _ usecases.SendLawyerMessageInput) (*usecases.SendLawyerMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.out == nil {
		return &usecases.SendLawyerMessageOutput{}, nil
	}
	return f.out, nil
}

type fakeVerifyCode struct {
	mu    sync.Mutex
	input usecases.VerifyCodeInput
	err   error
}

func (f *fakeVerifyCode) Execute(_ context.Context, in usecases.VerifyCodeInput) (*usecases.VerifyCodeOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &usecases.VerifyCodeOutput{}, nil
}

func (f *fakeVerifyCode) received() usecases.VerifyCodeInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}
