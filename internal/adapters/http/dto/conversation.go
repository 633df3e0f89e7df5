package dto

import (
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/pkg/protocol"
)

// ConversationListResponse represents a list of conversations
type ConversationListResponse struct {
	Conversations []protocol.Conversation `json:"conversations"`
	Total         int                     `json:"total"`
}

// CloseCaseRequest is the body of a case close request
type CloseCaseRequest struct {
	ResolutionNote string `json:"resolutionNote"`
}

// ConversationFromModel converts a domain model to its wire form
func ConversationFromModel(c *models.Conversation) protocol.Conversation {
	out := protocol.Conversation{
		ID:               c.ID,
		RoomID:           c.RoomID,
		Title:            c.Title,
		Status:           string(c.Status),
		SequenceNumber:   c.SequenceNumber,
		UnreadCount:      c.UnreadCount,
		LawyerNeeded:     c.LawyerNeeded,
		AssignedLawyerID: c.AssignedLawyerID,
		Priority:         string(c.Priority),
		CreatedAt:        c.CreatedAt.UnixMilli(),
	}
	if !c.Classification.IsEmpty() {
		out.Classification = &protocol.Classification{
			Category:   c.Classification.Category,
			Complexity: c.Classification.Complexity,
			LegalArea:  c.Classification.LegalArea,
		}
	}
	if c.LastMessageAt != nil {
		out.LastMessageAt = c.LastMessageAt.UnixMilli()
	}
	return out
}

// ConversationsFromModels converts a list of domain models, never returning nil
func ConversationsFromModels(convs []*models.Conversation) []protocol.Conversation {
	out := make([]protocol.Conversation, len(convs))
	for i, c := range convs {
		out[i] = ConversationFromModel(c)
	}
	return out
}

// RoomIDs lists the conversation rooms of convs
func RoomIDs(convs []*models.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.RoomID
	}
	return out
}
