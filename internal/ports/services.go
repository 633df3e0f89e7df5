package ports

import (
	"context"
	"time"

	"github.com/longregen/counsel/internal/domain/models"
)

// LLMMessage represents a message in the LLM conversation context
type LLMMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content"`
	ToolCalls   []*LLMToolCall      `json:"tool_calls,omitempty"`
	ToolCallID  string              `json:"tool_call_id,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// LLMToolCall represents a tool call from the LLM
type LLMToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// LLMResponse represents a response from the LLM
type LLMResponse struct {
	Content      string         `json:"content"`
	ToolCalls    []*LLMToolCall `json:"tool_calls,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

// LLMTool describes a function the model may call
type LLMTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// LLMService is the text-generation collaborator. One call produces the reply
// text and any function calls for a single user turn.
type LLMService interface {
	Generate(ctx context.Context, messages []LLMMessage, tools []LLMTool) (*LLMResponse, error)
}

// AttachmentService looks up files the upload service linked to a message
type AttachmentService interface {
	GetByMessageID(ctx context.Context, messageID string) ([]models.Attachment, error)
}

// CaseEvent is a case lifecycle event forwarded to billing.
type CaseEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	OwnerUserID    string    `json:"owner_user_id"`
	LawyerID       string    `json:"lawyer_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

const (
	CaseEventClaimed   = "case.claimed"
	CaseEventCompleted = "case.completed"
)

// BillingNotifier is invoked out-of-band on case lifecycle events
type BillingNotifier interface {
	NotifyCaseEvent(ctx context.Context, event CaseEvent) error
}

// CodeSender delivers verification codes to the contact being verified
type CodeSender interface {
	SendVerificationCode(ctx context.Context, contact models.Contact, code string, expiresAt time.Time) error
}

// ConversationNotifier pushes conversation events to connected clients.
// Implementations must not block on slow clients.
type ConversationNotifier interface {
	NotifyTypingStart(conversation *models.Conversation)
	NotifyTypingStop(conversation *models.Conversation)
	NotifyMessage(conversation *models.Conversation, message *models.Message)
	NotifyLawyerMessage(conversation *models.Conversation, message *models.Message)
	NotifyConversationUpdated(conversation *models.Conversation)
	NotifyFeedbackPrompt(conversation *models.Conversation, prompt *models.FeedbackPrompt)
}
