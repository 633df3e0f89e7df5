package dto

import (
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/pkg/protocol"
)

// MessageListResponse represents a conversation transcript
type MessageListResponse struct {
	ConversationID string                    `json:"conversationId"`
	Messages       []protocol.ReceiveMessage `json:"messages"`
}

// MessageFromModel converts a visible message to its wire form
func MessageFromModel(m *models.Message) protocol.ReceiveMessage {
	out := protocol.ReceiveMessage{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Text:           m.Text,
		Sender:         string(m.Sender),
		SenderID:       m.SenderID,
		CreatedAt:      m.CreatedAt.UnixMilli(),
		Attachments:    AttachmentsFromModels(m.Attachments),
	}
	if notice, ok := m.ErrorNotice(); ok {
		out.IsError = true
		out.ShouldRetry = notice.Retryable
		out.ErrorCode = notice.Code
	}
	return out
}

func MessagesFromModels(msgs []*models.Message) []protocol.ReceiveMessage {
	out := make([]protocol.ReceiveMessage, len(msgs))
	for i, m := range msgs {
		out[i] = MessageFromModel(m)
	}
	return out
}

func AttachmentsFromModels(in []models.Attachment) []protocol.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]protocol.Attachment, len(in))
	for i, a := range in {
		out[i] = protocol.Attachment{URI: a.URI, MimeType: a.MimeType, DisplayName: a.DisplayName}
	}
	return out
}

func AttachmentsToModels(in []protocol.Attachment) []models.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Attachment, len(in))
	for i, a := range in {
		out[i] = models.Attachment{URI: a.URI, MimeType: a.MimeType, DisplayName: a.DisplayName}
	}
	return out
}
