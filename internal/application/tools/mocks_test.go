package tools

import (
	"context"
	"errors"
	"sync"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

type fakeConversationStore struct {
	mu    sync.Mutex
	conv  *models.Conversation
	stale bool
}

func newFakeStore(status models.ConversationStatus) *fakeConversationStore {
	c := models.NewConversation("cv_1", "room_u1_1", "u1", 1)
	c.Status = status
	return &fakeConversationStore{conv: c}
}

func (f *fakeConversationStore) snapshot() *models.Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conv.Clone()
}

func (f *fakeConversationStore) Patch(_ context.Context, id string, mutate func(*models.Conversation) error) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.conv.ID {
		return nil, domain.ErrConversationNotFound
	}
	next := f.conv.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	f.conv = next
	return next.Clone(), nil
}

func (f *fakeConversationStore) Transition(_ context.Context, id string, to models.ConversationStatus, _ string, mutate func(*models.Conversation)) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != f.conv.ID {
		return nil, domain.ErrConversationNotFound
	}
	if f.stale {
		return nil, domain.ErrStaleConversation
	}
	next := f.conv.Clone()
	if err := next.ChangeStatus(to); err != nil {
		return nil, domain.NewDomainError(domain.ErrInvalidStatusTransition, err.Error())
	}
	if mutate != nil {
		mutate(next)
	}
	f.conv = next
	return next.Clone(), nil
}

type fakeIdentity struct {
	resolveErr   error
	outcome      models.ResolutionOutcome
	resolved     []models.Contact
	placeholders []string
}

func (f *fakeIdentity) Resolve(_ context.Context, name string, contact models.Contact) (*models.Resolution, error) {
	f.resolved = append(f.resolved, contact)
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	outcome := f.outcome
	if outcome == "" {
		outcome = models.ResolutionCreatedProvisional
	}
	return &models.Resolution{
		Outcome:  outcome,
		User:     &models.User{ID: "cu_resolved", Name: name, Email: contact.Email, Phone: contact.Phone},
		Contact:  contact,
		CodeSent: outcome != models.ResolutionConnectedExisting,
	}, nil
}

func (f *fakeIdentity) CreatePlaceholder(_ context.Context, name, conversationID string) (*models.Resolution, error) {
	f.placeholders = append(f.placeholders, conversationID)
	contact := models.PlaceholderContact(conversationID)
	return &models.Resolution{
		Outcome: models.ResolutionCreatedProvisional,
		User:    &models.User{ID: "cu_placeholder", Name: name, Email: contact.Email},
		Contact: contact,
	}, nil
}

var errIdentityDown = errors.New("user store unavailable")
