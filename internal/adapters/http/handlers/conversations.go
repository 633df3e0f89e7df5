package handlers

import (
	"context"
	"net/http"

	"github.com/longregen/counsel/internal/adapters/http/dto"
	"github.com/longregen/counsel/internal/domain/models"
)

// TranscriptReader returns the messages a client may see.
type TranscriptReader interface {
	VisibleHistory(ctx context.Context, conversationID string) ([]*models.Message, error)
}

type ConversationsHandler struct {
	conversations ConversationManager
	transcripts   TranscriptReader
}

func NewConversationsHandler(conversations ConversationManager, transcripts TranscriptReader) *ConversationsHandler {
	return &ConversationsHandler{
		conversations: conversations,
		transcripts:   transcripts,
	}
}

// List returns the caller's own conversations.
func (h *ConversationsHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	convs, err := h.conversations.ListForOwner(r.Context(), identity.UserID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, dto.ConversationListResponse{
		Conversations: dto.ConversationsFromModels(convs),
		Total:         len(convs),
	}, http.StatusOK)
}

// Messages returns the visible transcript of a conversation the caller may view.
func (h *ConversationsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id, ok := validateURLParam(r, w, "id", "conversation id")
	if !ok {
		return
	}

	conv, err := h.conversations.GetForViewer(r.Context(), identity, id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	msgs, err := h.transcripts.VisibleHistory(r.Context(), conv.ID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, dto.MessageListResponse{
		ConversationID: conv.ID,
		Messages:       dto.MessagesFromModels(msgs),
	}, http.StatusOK)
}
