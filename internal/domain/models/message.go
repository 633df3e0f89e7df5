package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAI        Sender = "ai"
	SenderLawyer    Sender = "lawyer"
	SenderModerator Sender = "moderator"
	SenderSystem    Sender = "system"
)

func (s Sender) IsValid() bool {
	switch s {
	case SenderUser, SenderAI, SenderLawyer, SenderModerator, SenderSystem:
		return true
	}
	return false
}

type PayloadKind string

const (
	PayloadKindPlainText        PayloadKind = "plain_text"
	PayloadKindFunctionCall     PayloadKind = "function_call"
	PayloadKindFunctionResponse PayloadKind = "function_response"
	PayloadKindErrorNotice      PayloadKind = "error_notice"
)

// Payload is the closed set of message kinds. Only types in this package implement it.
type Payload interface {
	Kind() PayloadKind
	HiddenFromClients() bool
	payload()
}

// PlainText is an ordinary visible chat message.
type PlainText struct{}

func (PlainText) Kind() PayloadKind       { return PayloadKindPlainText }
func (PlainText) HiddenFromClients() bool { return false }
func (PlainText) payload()                {}

// FunctionCall records a tool invocation requested by the assistant.
type FunctionCall struct {
	CallID string         `json:"call_id,omitempty"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
}

func (FunctionCall) Kind() PayloadKind       { return PayloadKindFunctionCall }
func (FunctionCall) HiddenFromClients() bool { return true }
func (FunctionCall) payload()                {}

// FunctionResponse records the outcome of a FunctionCall.
type FunctionResponse struct {
	CallID string         `json:"call_id,omitempty"`
	Name   string         `json:"name"`
	Result map[string]any `json:"result,omitempty"`
	Failed bool           `json:"failed,omitempty"`
}

func (FunctionResponse) Kind() PayloadKind       { return PayloadKindFunctionResponse }
func (FunctionResponse) HiddenFromClients() bool { return true }
func (FunctionResponse) payload()                {}

// ErrorNotice is a visible system message describing a failed turn.
type ErrorNotice struct {
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func (ErrorNotice) Kind() PayloadKind       { return PayloadKindErrorNotice }
func (ErrorNotice) HiddenFromClients() bool { return false }
func (ErrorNotice) payload()                {}

// EncodePayload returns the storage representation of a payload.
func EncodePayload(p Payload) (PayloadKind, []byte, error) {
	if p == nil {
		p = PlainText{}
	}
	if _, ok := p.(PlainText); ok {
		return PayloadKindPlainText, nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s payload: %w", p.Kind(), err)
	}
	return p.Kind(), data, nil
}

// DecodePayload rebuilds a payload from its storage representation.
func DecodePayload(kind PayloadKind, data []byte) (Payload, error) {
	switch kind {
	case PayloadKindPlainText, "":
		return PlainText{}, nil
	case PayloadKindFunctionCall:
		var p FunctionCall
		if err := unmarshalPayload(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PayloadKindFunctionResponse:
		var p FunctionResponse
		if err := unmarshalPayload(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PayloadKindErrorNotice:
		var p ErrorNotice
		if err := unmarshalPayload(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}

func unmarshalPayload(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

// Attachment is a reference to a file held by the upload service.
type Attachment struct {
	URI         string `json:"uri" msgpack:"uri"`
	MimeType    string `json:"mime_type" msgpack:"mimeType"`
	DisplayName string `json:"display_name" msgpack:"displayName"`
}

// Message is append-only: once persisted it is never mutated or deleted.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Text           string    `json:"text"`
	Sender         Sender    `json:"sender"`
	SenderID       string    `json:"sender_id,omitempty"`
	Payload        Payload   `json:"-"`
	CreatedAt      time.Time `json:"created_at"`

	// Loaded separately from the attachment service
	Attachments []Attachment `json:"attachments,omitempty"`
}

func NewMessage(id, conversationID string, sender Sender, senderID, text string, payload Payload) *Message {
	if payload == nil {
		payload = PlainText{}
	}
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Text:           text,
		Sender:         sender,
		SenderID:       senderID,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(), // Always use UTC for consistent timezone handling
	}
}

func NewUserMessage(id, conversationID, userID, text string) *Message {
	return NewMessage(id, conversationID, SenderUser, userID, text, PlainText{})
}

func NewAIMessage(id, conversationID, text string) *Message {
	return NewMessage(id, conversationID, SenderAI, "", text, PlainText{})
}

func NewSystemMessage(id, conversationID, text string) *Message {
	return NewMessage(id, conversationID, SenderSystem, "", text, PlainText{})
}

func NewErrorMessage(id, conversationID, text, code string, retryable bool) *Message {
	return NewMessage(id, conversationID, SenderSystem, "", text, ErrorNotice{Code: code, Retryable: retryable})
}

func (m *Message) HiddenFromClients() bool {
	return m.Payload != nil && m.Payload.HiddenFromClients()
}

// ErrorNotice returns the error payload, if any.
func (m *Message) ErrorNotice() (ErrorNotice, bool) {
	n, ok := m.Payload.(ErrorNotice)
	return n, ok
}

// VisibleMessages drops messages that must never reach a client.
func VisibleMessages(messages []*Message) []*Message {
	visible := make([]*Message, 0, len(messages))
	for _, m := range messages {
		if !m.HiddenFromClients() {
			visible = append(visible, m)
		}
	}
	return visible
}
