package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/counsel/internal/adapters/circuitbreaker"
	"github.com/longregen/counsel/internal/adapters/metrics"
	"github.com/longregen/counsel/internal/adapters/tracing"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/ports"
)

const (
	// LLMTimeout is the maximum time to wait for LLM responses
	LLMTimeout = 2 * time.Minute
)

// Service implements ports.LLMService using the OpenAI-compatible client
type Service struct {
	client  *Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewService creates a new LLM service
func NewService(client *Client) *Service {
	return &Service{
		client: client,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:        "llm",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			// Bad credentials or a wrong model name are configuration
			// problems, not an unhealthy provider
			IsFailure: func(err error) bool {
				reason := classify(err)
				return reason == domain.GenerationUnavailable || reason == domain.GenerationQuotaExceeded
			},
			OnStateChange: func(name string, _, to circuitbreaker.State) {
				metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		}),
	}
}

var _ ports.LLMService = (*Service)(nil)

// Generate runs one completion. Every failure comes back as a
// *domain.GenerationError carrying its classification.
func (s *Service) Generate(ctx context.Context, messages []ports.LLMMessage, tools []ports.LLMTool) (*ports.LLMResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, LLMTimeout)
	defer cancel()

	model := s.client.Model()
	ctx, span := tracing.Tracer().Start(ctx, "llm.generate", trace.WithAttributes(tracing.LLMModel(model)))
	defer span.End()
	start := time.Now()

	var response *ChatCompletionResponse
	err := s.breaker.Execute(func() error {
		var err error
		response, err = s.client.ChatWithTools(ctx, convertMessages(messages), convertTools(tools))
		return err
	})

	metrics.LLMRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		reason := classify(err)
		metrics.LLMRequestsTotal.WithLabelValues(model, reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return nil, domain.NewGenerationError(reason, err)
	}
	metrics.LLMRequestsTotal.WithLabelValues(model, "ok").Inc()

	choice := response.Choices[0]
	return &ports.LLMResponse{
		Content:      choice.Message.Content,
		ToolCalls:    convertToolCalls(choice.Message.ToolCalls),
		FinishReason: choice.FinishReason,
	}, nil
}

// classify maps a transport or provider failure onto the generation taxonomy.
func classify(err error) string {
	var apiErr *APIError
	var malformed *MalformedResponseError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &malformed):
		return domain.GenerationMalformed
	case errors.As(err, &apiErr):
		body := strings.ToLower(apiErr.Body)
		switch {
		case strings.Contains(body, "insufficient_quota"), strings.Contains(body, "quota"),
			apiErr.StatusCode == http.StatusTooManyRequests, apiErr.StatusCode == http.StatusPaymentRequired:
			return domain.GenerationQuotaExceeded
		case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
			return domain.GenerationAuthFailed
		case apiErr.StatusCode == http.StatusNotFound, strings.Contains(body, "model_not_found"),
			strings.Contains(body, "model") && strings.Contains(body, "does not exist"):
			return domain.GenerationModelNotFound
		case apiErr.StatusCode == http.StatusBadRequest, apiErr.StatusCode == http.StatusUnprocessableEntity:
			return domain.GenerationMalformed
		}
		return domain.GenerationUnavailable
	}
	return domain.GenerationUnavailable
}

func convertMessages(messages []ports.LLMMessage) []ChatMessage {
	chatMessages := make([]ChatMessage, len(messages))
	for i, msg := range messages {
		cm := ChatMessage{
			Role:       msg.Role,
			Content:    msg.Content + attachmentReferences(msg),
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil || tc.Arguments == nil {
				args = []byte("{}")
			}
			cm.ToolCalls = append(cm.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		chatMessages[i] = cm
	}
	return chatMessages
}

// attachmentReferences lists attached files so the model knows they exist.
func attachmentReferences(msg ports.LLMMessage) string {
	if len(msg.Attachments) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n[Attachments]")
	for i, a := range msg.Attachments {
		b.WriteString("\n" + strconv.Itoa(i+1) + ". ")
		if a.DisplayName != "" {
			b.WriteString(a.DisplayName + " ")
		}
		b.WriteString("(" + a.MimeType + ") " + a.URI)
	}
	return b.String()
}

func convertTools(tools []ports.LLMTool) []Tool {
	if len(tools) == 0 {
		return nil
	}
	llmTools := make([]Tool, len(tools))
	for i, tool := range tools {
		llmTools[i] = Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		}
	}
	return llmTools
}

// convertToolCalls parses the JSON argument strings. Arguments that do not
// parse become an empty map so the tool handler applies its defaults.
func convertToolCalls(toolCalls []ToolCall) []*ports.LLMToolCall {
	if len(toolCalls) == 0 {
		return nil
	}

	portToolCalls := make([]*ports.LLMToolCall, len(toolCalls))
	for i, tc := range toolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil || args == nil {
			args = make(map[string]any)
		}

		portToolCalls[i] = &ports.LLMToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		}
	}
	return portToolCalls
}
