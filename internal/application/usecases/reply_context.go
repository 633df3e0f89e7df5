package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/application/services"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

// buildContext maps the stored history onto generation messages. Audit
// records are replayed as tool calls and tool results so the model sees what
// it already did.
func (uc *GenerateReply) buildContext(ctx context.Context, conv *models.Conversation, current *models.Message) []ports.LLMMessage {
	history, err := uc.messages.History(ctx, conv.ID)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to load history, answering from the current message only")
		history = nil
	}
	if current != nil {
		history = withCurrent(history, current)
	}
	if len(history) == 0 {
		return nil
	}

	services.ResolveAttachments(ctx, uc.attachments, history)

	llmMessages := make([]ports.LLMMessage, 0, len(history)+1)
	if facts := caseFacts(conv); facts != "" {
		llmMessages = append(llmMessages, ports.LLMMessage{Role: "system", Content: facts})
	}

	seenCalls := make(map[string]bool)
	for _, msg := range history {
		switch p := msg.Payload.(type) {
		case models.FunctionCall:
			callID := p.CallID
			if callID == "" {
				callID = "call_" + msg.ID
			}
			seenCalls[callID] = true
			llmMessages = append(llmMessages, ports.LLMMessage{
				Role: "assistant",
				ToolCalls: []*ports.LLMToolCall{{
					ID:        callID,
					Name:      p.Name,
					Arguments: p.Args,
				}},
			})

		case models.FunctionResponse:
			if !seenCalls[p.CallID] {
				continue
			}
			llmMessages = append(llmMessages, ports.LLMMessage{
				Role:       "tool",
				ToolCallID: p.CallID,
				Content:    encodeToolResult(p),
			})

		case models.ErrorNotice:
			// Failure notices are for the client, not the model.
			continue

		default:
			if m, ok := plainMessage(msg); ok {
				llmMessages = append(llmMessages, m)
			}
		}
	}
	return llmMessages
}

func plainMessage(msg *models.Message) (ports.LLMMessage, bool) {
	if strings.TrimSpace(msg.Text) == "" && len(msg.Attachments) == 0 {
		return ports.LLMMessage{}, false
	}

	m := ports.LLMMessage{Content: msg.Text, Attachments: msg.Attachments}
	switch msg.Sender {
	case models.SenderUser:
		m.Role = "user"
	case models.SenderAI:
		m.Role = "assistant"
	case models.SenderLawyer:
		m.Role = "assistant"
		m.Content = "[lawyer] " + msg.Text
	case models.SenderModerator, models.SenderSystem:
		m.Role = "system"
	default:
		return ports.LLMMessage{}, false
	}
	return m, true
}

func encodeToolResult(p models.FunctionResponse) string {
	result := p.Result
	if result == nil {
		result = map[string]any{}
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(data)
}

// caseFacts summarizes what is already known about the case.
func caseFacts(conv *models.Conversation) string {
	var facts []string
	if conv.ContactName != "" {
		facts = append(facts, "client name: "+conv.ContactName)
	}
	if conv.LinkedUserID != "" {
		facts = append(facts, "client registered and verified")
	} else if conv.ContactEmail != "" || conv.ContactPhone != "" {
		facts = append(facts, "client registered, contact not verified yet")
	}
	if conv.ProblemDescription != "" {
		facts = append(facts, "problem: "+conv.ProblemDescription)
	}
	if conv.LawyerNeeded {
		facts = append(facts, "already flagged for a lawyer")
	}
	if conv.Classification != nil && conv.Classification.LegalArea != "" {
		facts = append(facts, "legal area: "+conv.Classification.LegalArea)
	}
	if len(facts) == 0 {
		return ""
	}
	return "Known case facts:\n- " + strings.Join(facts, "\n- ")
}

// withCurrent makes sure the message being answered is in the history with
// the attachments it was sent with.
func withCurrent(history []*models.Message, current *models.Message) []*models.Message {
	for _, m := range history {
		if m.ID == current.ID {
			if len(m.Attachments) == 0 {
				m.Attachments = current.Attachments
			}
			return history
		}
	}
	return append(history, current)
}
