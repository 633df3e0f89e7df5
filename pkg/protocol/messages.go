package protocol

// ============================================================================
// Client to server bodies
// ============================================================================

// SwitchConversation is the body of switch-conversation
type SwitchConversation struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
}

// SendMessage is the body of send-message
type SendMessage struct {
	ConversationID string       `msgpack:"conversationId" json:"conversationId"`
	Text           string       `msgpack:"text" json:"text"`
	Attachments    []Attachment `msgpack:"attachments,omitempty" json:"attachments,omitempty"`
}

// VerifyCode is the body of verify-code
type VerifyCode struct {
	RoomID string `msgpack:"roomId" json:"roomId"`
	Code   string `msgpack:"code" json:"code"`
	Email  string `msgpack:"email,omitempty" json:"email,omitempty"`
	Phone  string `msgpack:"phone,omitempty" json:"phone,omitempty"`
}

// SendLawyerMessage is the body of send-lawyer-message
type SendLawyerMessage struct {
	RoomID  string `msgpack:"roomId" json:"roomId"`
	Message string `msgpack:"message" json:"message"`
}

// RoomRef is the body of join-case, leave-room and claim-case
type RoomRef struct {
	RoomID string `msgpack:"roomId" json:"roomId"`
}

// CloseCase is the body of close-case
type CloseCase struct {
	RoomID         string `msgpack:"roomId" json:"roomId"`
	ResolutionNote string `msgpack:"resolutionNote" json:"resolutionNote"`
}

// CloseConversation is the body of close-conversation
type CloseConversation struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
}

// ============================================================================
// Server to client bodies
// ============================================================================

// Attachment references a file held by the upload service
type Attachment struct {
	URI         string `msgpack:"uri" json:"uri"`
	MimeType    string `msgpack:"mimeType" json:"mimeType"`
	DisplayName string `msgpack:"displayName" json:"displayName"`
}

// Classification is the assistant's triage of a conversation
type Classification struct {
	Category   string `msgpack:"category,omitempty" json:"category,omitempty"`
	Complexity string `msgpack:"complexity,omitempty" json:"complexity,omitempty"`
	LegalArea  string `msgpack:"legalArea,omitempty" json:"legalArea,omitempty"`
}

// Conversation is the client view of a conversation
type Conversation struct {
	ID               string          `msgpack:"conversationId" json:"conversationId"`
	RoomID           string          `msgpack:"roomId" json:"roomId"`
	Title            string          `msgpack:"title" json:"title"`
	Status           string          `msgpack:"status" json:"status"`
	SequenceNumber   int             `msgpack:"conversationSequenceNumber" json:"conversationSequenceNumber"`
	UnreadCount      int             `msgpack:"unreadCount" json:"unreadCount"`
	LawyerNeeded     bool            `msgpack:"lawyerNeeded" json:"lawyerNeeded"`
	AssignedLawyerID string          `msgpack:"assignedLawyerId,omitempty" json:"assignedLawyerId,omitempty"`
	Priority         string          `msgpack:"priority" json:"priority"`
	Classification   *Classification `msgpack:"classification,omitempty" json:"classification,omitempty"`
	CreatedAt        int64           `msgpack:"createdAt" json:"createdAt"`
	LastMessageAt    int64           `msgpack:"lastMessageAt,omitempty" json:"lastMessageAt,omitempty"`
}

// ReceiveMessage is the body of receive-message and receive-lawyer-message.
// Timestamps are Unix milliseconds.
type ReceiveMessage struct {
	MessageID      string       `msgpack:"messageId" json:"messageId"`
	ConversationID string       `msgpack:"conversationId" json:"conversationId"`
	Text           string       `msgpack:"text" json:"text"`
	Sender         string       `msgpack:"sender" json:"sender"`
	SenderID       string       `msgpack:"senderId,omitempty" json:"senderId,omitempty"`
	CreatedAt      int64        `msgpack:"createdAt" json:"createdAt"`
	Attachments    []Attachment `msgpack:"attachments,omitempty" json:"attachments,omitempty"`
	IsError        bool         `msgpack:"isError,omitempty" json:"isError,omitempty"`
	ShouldRetry    bool         `msgpack:"shouldRetry,omitempty" json:"shouldRetry,omitempty"`
	ErrorCode      string       `msgpack:"errorCode,omitempty" json:"errorCode,omitempty"`
}

// Typing is the body of typing-start and typing-stop
type Typing struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
}

// FeedbackModal is the body of show-feedback-modal
type FeedbackModal struct {
	ConversationID string `msgpack:"conversationId" json:"conversationId"`
	Reason         string `msgpack:"reason" json:"reason"`
	Context        string `msgpack:"context" json:"context"`
}

// ConversationsLoaded is the body of conversations-loaded
type ConversationsLoaded struct {
	Conversations []Conversation `msgpack:"conversations" json:"conversations"`
	ActiveRooms   []string       `msgpack:"activeRooms" json:"activeRooms"`
}

// NewConversationCreated is the body of new-conversation-created
type NewConversationCreated struct {
	Conversation Conversation `msgpack:"conversation" json:"conversation"`
}

// ConversationSwitched is the body of conversation-switched
type ConversationSwitched struct {
	ConversationID string           `msgpack:"conversationId" json:"conversationId"`
	Messages       []ReceiveMessage `msgpack:"messages" json:"messages"`
	Conversations  []Conversation   `msgpack:"conversations" json:"conversations"`
}

// ConversationUpdated is the body of conversation-updated
type ConversationUpdated struct {
	Conversation Conversation `msgpack:"conversation" json:"conversation"`
}

// ErrorMessage is the body of error
type ErrorMessage struct {
	Code    string `msgpack:"code" json:"code"`
	Message string `msgpack:"message" json:"message"`
	// OriginatingStanza is the client stanza that caused the error, if any.
	OriginatingStanza int32 `msgpack:"originatingStanza,omitempty" json:"originatingStanza,omitempty"`
}
