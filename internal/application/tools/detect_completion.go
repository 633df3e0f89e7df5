package tools

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

const DetectCompletionName = "detect_conversation_completion"

type detectCompletionArgs struct {
	ShouldShowFeedback bool   `json:"should_show_feedback" jsonschema_description:"True when the conversation has reached its end and the client should rate it"`
	CompletionReason   string `json:"completion_reason,omitempty" jsonschema:"enum=resolved_by_ai,enum=user_satisfied,enum=user_ended,enum=lawyer_assigned" jsonschema_description:"Why the conversation ended"`
}

// DetectCompletion reacts to the assistant deciding the conversation is over.
// Only resolved_by_ai changes the status.
type DetectCompletion struct {
	conversations ConversationStore
	definition    ports.LLMTool
}

func NewDetectCompletion(conversations ConversationStore) *DetectCompletion {
	return &DetectCompletion{
		conversations: conversations,
		definition: ports.LLMTool{
			Name:        DetectCompletionName,
			Description: "Report that the conversation has ended, and whether the client should be asked for feedback.",
			Parameters:  schemaFor(&detectCompletionArgs{}),
		},
	}
}

func (h *DetectCompletion) Definition() ports.LLMTool {
	return h.definition
}

func (h *DetectCompletion) Execute(ctx context.Context, call Call) (Effect, error) {
	show := boolArg(call.Args, "should_show_feedback")
	reason := stringArg(call.Args, "completion_reason")
	if !models.IsCompletionReason(reason) {
		reason = ""
	}

	conv := call.Conversation
	effect := Effect{Result: map[string]any{
		"should_show_feedback": show,
		"completion_reason":    reason,
	}}

	if reason == models.CompletionResolvedByAI {
		updated, err := h.conversations.Transition(ctx, conv.ID, models.ConversationStatusResolvedByAI, reason, nil)
		switch {
		case err == nil:
			conv = updated
			effect.Conversation = updated
			effect.Transitioned = true
		case errors.Is(err, domain.ErrStaleConversation):
			log.Debug().Str("conversation_id", conv.ID).Msg("conversation moved concurrently, completion ignored")
		case errors.Is(err, domain.ErrInvalidStatusTransition):
			effect.Result["note"] = err.Error()
		default:
			return Effect{}, err
		}
	}
	effect.Result["status"] = string(conv.Status)

	if show {
		summary := conv.ProblemDescription
		if summary == "" {
			summary = conv.Title
		}
		effect.Feedback = &models.FeedbackPrompt{
			ConversationID: conv.ID,
			Reason:         reason,
			Context:        summary,
		}
	}
	return effect, nil
}
