// Package protocol defines the real-time event protocol spoken between chat
// clients and the intake gateway over WebSocket.
package protocol

// Event names the kind of an envelope. Client and server events share one
// namespace.
type Event string

// Client to server
const (
	EventJoinRoom              Event = "join-room"
	EventCreateNewConversation Event = "create-new-conversation"
	EventSwitchConversation    Event = "switch-conversation"
	EventSendMessage           Event = "send-message"
	EventVerifyCode            Event = "verify-code"
	EventSendLawyerMessage     Event = "send-lawyer-message"
	EventJoinCase              Event = "join-case"
	EventLeaveRoom             Event = "leave-room"
	EventClaimCase             Event = "claim-case"
	EventCloseCase             Event = "close-case"
	EventCloseConversation     Event = "close-conversation"
)

// Server to client
const (
	EventReceiveMessage         Event = "receive-message"
	EventReceiveLawyerMessage   Event = "receive-lawyer-message"
	EventTypingStart            Event = "typing-start"
	EventTypingStop             Event = "typing-stop"
	EventShowFeedbackModal      Event = "show-feedback-modal"
	EventConversationsLoaded    Event = "conversations-loaded"
	EventNewConversationCreated Event = "new-conversation-created"
	EventConversationSwitched   Event = "conversation-switched"
	EventConversationUpdated    Event = "conversation-updated"
	EventError                  Event = "error"
)

var clientEvents = map[Event]bool{
	EventJoinRoom:              true,
	EventCreateNewConversation: true,
	EventSwitchConversation:    true,
	EventSendMessage:           true,
	EventVerifyCode:            true,
	EventSendLawyerMessage:     true,
	EventJoinCase:              true,
	EventLeaveRoom:             true,
	EventClaimCase:             true,
	EventCloseCase:             true,
	EventCloseConversation:     true,
}

// IsClientEvent reports whether clients may send e.
func (e Event) IsClientEvent() bool {
	return clientEvents[e]
}

// Error codes carried on error frames
const (
	ErrCodeAuth                = "auth_error"
	ErrCodeAuthorizationDenied = "authorization_denied"
	ErrCodeNotFound            = "not_found"
	ErrCodeValidation          = "validation_error"
	ErrCodeMalformedData       = "malformed_data"
	ErrCodeUnknownEvent        = "unknown_event"
	ErrCodeInternal            = "internal_error"
)
