package tools

import (
	"context"

	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

const ClassifyConversationName = "classify_conversation"

type classifyArgs struct {
	Category   string `json:"category,omitempty" jsonschema_description:"Kind of request, e.g. consultation, dispute or document review"`
	Complexity string `json:"complexity,omitempty" jsonschema:"enum=simple,enum=moderate,enum=complex"`
	LegalArea  string `json:"legal_area,omitempty" jsonschema_description:"Area of law, e.g. trabalhista, consumidor or família"`
}

// ClassifyConversation stores the assistant's triage of the case.
type ClassifyConversation struct {
	conversations ConversationStore
	definition    ports.LLMTool
}

func NewClassifyConversation(conversations ConversationStore) *ClassifyConversation {
	return &ClassifyConversation{
		conversations: conversations,
		definition: ports.LLMTool{
			Name:        ClassifyConversationName,
			Description: "Record the category, complexity and legal area of the client's problem once they are clear.",
			Parameters:  schemaFor(&classifyArgs{}),
		},
	}
}

func (h *ClassifyConversation) Definition() ports.LLMTool {
	return h.definition
}

func (h *ClassifyConversation) Execute(ctx context.Context, call Call) (Effect, error) {
	next := models.Classification{
		Category:   stringArg(call.Args, "category"),
		Complexity: stringArg(call.Args, "complexity"),
		LegalArea:  stringArg(call.Args, "legal_area"),
	}
	if next.IsEmpty() {
		return Effect{Result: map[string]any{"classified": false}}, nil
	}

	conv, err := h.conversations.Patch(ctx, call.Conversation.ID, func(c *models.Conversation) error {
		merged := models.Classification{}
		if c.Classification != nil {
			merged = *c.Classification
		}
		if next.Category != "" {
			merged.Category = next.Category
		}
		if next.Complexity != "" {
			merged.Complexity = next.Complexity
		}
		if next.LegalArea != "" {
			merged.LegalArea = next.LegalArea
		}
		c.Classification = &merged
		return nil
	})
	if err != nil {
		return Effect{}, err
	}

	return Effect{
		Conversation: conv,
		Result:       map[string]any{"classified": true},
	}, nil
}
