package usecases

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/counsel/internal/adapters/metrics"
	"github.com/longregen/counsel/internal/adapters/tracing"
	"github.com/longregen/counsel/internal/application/services"
	"github.com/longregen/counsel/internal/application/tools"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

type GenerateReplyInput struct {
	Conversation *models.Conversation
	UserMessage  *models.Message
}

type GenerateReplyOutput struct {
	Reply        *models.Message
	Effects      []tools.Effect
	Conversation *models.Conversation
	// Failed is set when the turn ended in an error notice instead of a reply.
	Failed bool
}

// GenerateReply runs one assistant turn: a single generation call, the tool
// calls it requested, then the reply.
type GenerateReply struct {
	conversations *services.ConversationService
	messages      *services.MessageService
	attachments   ports.AttachmentService
	llmService    ports.LLMService
	registry      *tools.Registry
	notifier      ports.ConversationNotifier
	idGenerator   ports.IDGenerator
}

func NewGenerateReply(
	conversations *services.ConversationService,
	messages *services.MessageService,
	attachments ports.AttachmentService,
	llmService ports.LLMService,
	registry *tools.Registry,
	notifier ports.ConversationNotifier,
	idGenerator ports.IDGenerator,
) *GenerateReply {
	return &GenerateReply{
		conversations: conversations,
		messages:      messages,
		attachments:   attachments,
		llmService:    llmService,
		registry:      registry,
		notifier:      notifier,
		idGenerator:   idGenerator,
	}
}

func (uc *GenerateReply) Execute(ctx context.Context, input GenerateReplyInput) (*GenerateReplyOutput, error) {
	conv := input.Conversation
	ctx, span := tracing.Tracer().Start(ctx, "ai.turn", trace.WithAttributes(tracing.ConversationID(conv.ID)))
	defer span.End()
	if input.UserMessage != nil {
		span.SetAttributes(tracing.MessageID(input.UserMessage.ID))
	}

	// 1. Typing indicator, always cleared
	uc.notifier.NotifyTypingStart(conv)
	defer func() { uc.notifier.NotifyTypingStop(conv) }()

	out := &GenerateReplyOutput{Conversation: conv}

	// 2. Context from the full history
	llmMessages := uc.buildContext(ctx, conv, input.UserMessage)

	// 3. One generation call
	resp, err := uc.llmService.Generate(ctx, llmMessages, uc.registry.Definitions())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		out.Reply = uc.sendErrorNotice(ctx, conv, err)
		out.Failed = true
		metrics.AITurnsTotal.WithLabelValues("generation_error").Inc()
		return out, nil
	}

	// 4. Tool calls in the order requested
	var ownStatus models.ConversationStatus
	for _, tc := range resp.ToolCalls {
		if tc == nil {
			continue
		}
		conv = uc.runTool(ctx, conv, tc, out)
		if n := len(out.Effects); n > 0 && out.Effects[n-1].Transitioned {
			ownStatus = conv.Status
		}
	}

	// 5. Authorize against the stored conversation and persist the reply
	if current, err := uc.conversations.Get(ctx, conv.ID); err == nil {
		conv = current
	} else {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to reload conversation, using last known state")
	}
	out.Conversation = conv

	if resp.Content != "" {
		reply := models.NewAIMessage(uc.idGenerator.GenerateMessageID(), conv.ID, resp.Content)
		if err := uc.messages.Append(ctx, replySender(conv, ownStatus), conv, reply); err != nil {
			if errors.Is(err, domain.ErrAuthorizationDenied) {
				log.Info().Str("conversation_id", conv.ID).Str("status", string(conv.Status)).Msg("reply dropped, conversation no longer accepts the assistant")
				metrics.AITurnsTotal.WithLabelValues("dropped").Inc()
				uc.emitFeedback(ctx, out)
				return out, nil
			}
			span.RecordError(err)
			out.Reply = uc.sendErrorNotice(ctx, conv, err)
			out.Failed = true
			metrics.AITurnsTotal.WithLabelValues("persistence_error").Inc()
			return out, nil
		}
		conv = uc.conversations.Activate(ctx, conv)
		out.Conversation = conv
		out.Reply = reply
		uc.notifier.NotifyMessage(conv, reply)
	}

	// 6. Feedback prompt, at most once per conversation
	uc.emitFeedback(ctx, out)

	metrics.AITurnsTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("ai.tool_calls", len(resp.ToolCalls)))
	return out, nil
}

// replySender returns the sender used to authorize a reply. When this turn's
// own tool moved the conversation out of active, the reply is authorized as
// the closing reply of that turn.
func replySender(conv *models.Conversation, ownStatus models.ConversationStatus) services.Sender {
	if ownStatus != "" && conv.Status == ownStatus {
		return services.AIClosingSender
	}
	return services.AISender
}

func (uc *GenerateReply) runTool(ctx context.Context, conv *models.Conversation, tc *ports.LLMToolCall, out *GenerateReplyOutput) *models.Conversation {
	ctx, span := tracing.Tracer().Start(ctx, "tool."+tc.Name,
		trace.WithAttributes(tracing.ToolName(tc.Name), tracing.ConversationID(conv.ID)))
	defer span.End()

	callID := tc.ID
	if callID == "" {
		callID = "call_" + uc.idGenerator.GenerateMessageID()
	}

	uc.messages.RecordHidden(ctx, models.NewMessage(
		uc.idGenerator.GenerateMessageID(), conv.ID, models.SenderAI, "", "",
		models.FunctionCall{CallID: callID, Name: tc.Name, Args: tc.Arguments},
	))
	// The call record is the first assistant-authored message of a turn.
	conv = uc.conversations.Activate(ctx, conv)

	start := time.Now()
	effect, err := uc.registry.Dispatch(ctx, tools.Call{
		ID:           callID,
		Name:         tc.Name,
		Args:         tc.Arguments,
		Conversation: conv,
	})

	status := "success"
	response := models.FunctionResponse{CallID: callID, Name: tc.Name, Result: effect.Result}
	if err != nil {
		status = "error"
		response.Failed = true
		response.Result = map[string]any{"error": err.Error()}
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		log.Warn().Err(err).Str("tool", tc.Name).Str("conversation_id", conv.ID).Msg("tool call failed")
	}
	span.SetAttributes(tracing.ToolStatus(status))
	metrics.ToolCallsTotal.WithLabelValues(tc.Name, status).Inc()
	log.Debug().Str("tool", tc.Name).Str("status", status).Dur("took", time.Since(start)).Msg("tool call finished")

	uc.messages.RecordHidden(ctx, models.NewMessage(
		uc.idGenerator.GenerateMessageID(), conv.ID, models.SenderAI, "", "", response,
	))

	if err != nil {
		return conv
	}
	out.Effects = append(out.Effects, effect)
	if effect.Conversation != nil {
		conv = effect.Conversation
		// Status changes already went out through the conversation service.
		if !effect.Transitioned {
			uc.notifier.NotifyConversationUpdated(conv)
		}
	}
	return conv
}

func (uc *GenerateReply) emitFeedback(ctx context.Context, out *GenerateReplyOutput) {
	var prompt *models.FeedbackPrompt
	for _, e := range out.Effects {
		if e.Feedback != nil {
			prompt = e.Feedback
			break
		}
	}
	if prompt == nil {
		return
	}

	asked := false
	conv, err := uc.conversations.Patch(ctx, out.Conversation.ID, func(c *models.Conversation) error {
		if c.FeedbackRequested {
			asked = true
			return nil
		}
		c.FeedbackRequested = true
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", out.Conversation.ID).Msg("failed to record feedback request")
		return
	}
	if asked {
		return
	}
	out.Conversation = conv
	uc.notifier.NotifyFeedbackPrompt(conv, prompt)
}

// sendErrorNotice persists and broadcasts the error notice for a failed turn.
// It is broadcast even when it cannot be stored.
func (uc *GenerateReply) sendErrorNotice(ctx context.Context, conv *models.Conversation, cause error) *models.Message {
	reason, retryable := classifyTurnError(cause)
	log.Error().Err(cause).Str("conversation_id", conv.ID).Str("reason", reason).Msg("assistant turn failed")

	notice := models.NewErrorMessage(uc.idGenerator.GenerateMessageID(), conv.ID, errorNoticeText(reason), reason, retryable)
	if err := uc.messages.Append(ctx, services.SystemSender, conv, notice); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to store error notice")
	}
	uc.notifier.NotifyMessage(conv, notice)
	return notice
}

func classifyTurnError(err error) (string, bool) {
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		return genErr.Reason, genErr.Retryable
	}
	if errors.Is(err, domain.ErrPersistenceFailure) {
		return domain.CodePersistenceFailure, true
	}
	return domain.GenerationUnavailable, true
}

func errorNoticeText(reason string) string {
	switch reason {
	case domain.GenerationQuotaExceeded:
		return "Nosso assistente está com alta demanda no momento. Tente novamente em alguns instantes."
	case domain.GenerationAuthFailed:
		return "O assistente está temporariamente indisponível. Nossa equipe já foi avisada."
	case domain.GenerationModelNotFound, domain.GenerationUnavailable:
		return "O assistente está temporariamente indisponível. Tente novamente em alguns instantes."
	case domain.GenerationMalformed:
		return "Não consegui processar sua mensagem. Tente reformulá-la."
	default:
		return "Não foi possível concluir sua solicitação. Tente novamente."
	}
}
