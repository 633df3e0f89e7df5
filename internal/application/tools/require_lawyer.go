package tools

import (
	"context"

	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

const RequireLawyerAssistanceName = "require_lawyer_assistance"

type requireLawyerArgs struct {
	SpecializationRequired string   `json:"specialization_required,omitempty" jsonschema_description:"Area of law the case needs, e.g. trabalhista or família"`
	CaseSummary            string   `json:"case_summary,omitempty" jsonschema_description:"Summary of the case for the lawyer who picks it up"`
	RequiredSpecialties    []string `json:"required_specialties,omitempty" jsonschema_description:"Specialties a lawyer must have to take the case"`
}

// RequireLawyerAssistance flags the case for the lawyer queue. The status is
// left alone; a lawyer moves it when claiming.
type RequireLawyerAssistance struct {
	conversations ConversationStore
	definition    ports.LLMTool
}

func NewRequireLawyerAssistance(conversations ConversationStore) *RequireLawyerAssistance {
	return &RequireLawyerAssistance{
		conversations: conversations,
		definition: ports.LLMTool{
			Name:        RequireLawyerAssistanceName,
			Description: "Flag the case for a human lawyer when it needs representation or advice the assistant cannot give.",
			Parameters:  schemaFor(&requireLawyerArgs{}),
		},
	}
}

func (h *RequireLawyerAssistance) Definition() ports.LLMTool {
	return h.definition
}

func (h *RequireLawyerAssistance) Execute(ctx context.Context, call Call) (Effect, error) {
	specialization := stringArg(call.Args, "specialization_required")
	summary := stringArg(call.Args, "case_summary")
	specialties := stringSliceArg(call.Args, "required_specialties")

	conv, err := h.conversations.Patch(ctx, call.Conversation.ID, func(c *models.Conversation) error {
		c.LawyerNeeded = true
		if specialization != "" {
			c.Specialization = specialization
		}
		if summary != "" {
			c.CaseSummary = summary
		}
		if specialties != nil {
			c.RequiredSpecialties = specialties
		}
		return nil
	})
	if err != nil {
		return Effect{}, err
	}

	return Effect{
		Conversation: conv,
		Result: map[string]any{
			"lawyer_needed":  true,
			"specialization": conv.Specialization,
		},
	}, nil
}
