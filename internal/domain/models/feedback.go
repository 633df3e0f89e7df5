package models

// Completion reasons accepted from the assistant's completion detector.
const (
	CompletionResolvedByAI   = "resolved_by_ai"
	CompletionUserSatisfied  = "user_satisfied"
	CompletionUserEnded      = "user_ended"
	CompletionLawyerAssigned = "lawyer_assigned"
)

var completionReasons = map[string]bool{
	CompletionResolvedByAI:   true,
	CompletionUserSatisfied:  true,
	CompletionUserEnded:      true,
	CompletionLawyerAssigned: true,
}

// IsCompletionReason reports whether reason is one the service acts upon.
func IsCompletionReason(reason string) bool {
	return completionReasons[reason]
}

// FeedbackPrompt asks the client to show the end-of-conversation feedback form.
type FeedbackPrompt struct {
	ConversationID string `json:"conversation_id" msgpack:"conversationId"`
	Reason         string `json:"reason" msgpack:"reason"`
	Context        string `json:"context,omitempty" msgpack:"context,omitempty"`
}
