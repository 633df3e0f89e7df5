package protocol

// Envelope wraps every event with the metadata needed for routing and ordering.
// Envelopes are serialized using MessagePack on binary frames and JSON on text
// frames.
type Envelope struct {
	// StanzaID orders envelopes on one connection.
	// Client envelopes: positive, incrementing (1, 2, 3, ...)
	// Server envelopes: negative, decrementing (-1, -2, -3, ...)
	StanzaID int32 `msgpack:"stanzaId" json:"stanzaId"`

	Event Event `msgpack:"event" json:"event"`

	// ConversationID is set on events scoped to one conversation.
	ConversationID string `msgpack:"conversationId,omitempty" json:"conversationId,omitempty"`

	// Meta contains optional metadata including OpenTelemetry tracing fields
	Meta map[string]interface{} `msgpack:"meta,omitempty" json:"meta,omitempty"`

	// Body contains the event-specific payload
	Body interface{} `msgpack:"body,omitempty" json:"body,omitempty"`
}

// Common meta keys
const (
	MetaKeyTimestamp = "timestamp"
	MetaKeyTraceID   = "messaging.trace_id"
	MetaKeySpanID    = "messaging.span_id"
)

func NewEnvelope(stanzaID int32, conversationID string, event Event, body interface{}) *Envelope {
	return &Envelope{
		StanzaID:       stanzaID,
		Event:          event,
		ConversationID: conversationID,
		Body:           body,
	}
}

func (e *Envelope) WithMeta(key string, value interface{}) *Envelope {
	if e.Meta == nil {
		e.Meta = make(map[string]interface{})
	}
	e.Meta[key] = value
	return e
}

// WithTracing adds OpenTelemetry tracing fields
func (e *Envelope) WithTracing(traceID, spanID string) *Envelope {
	return e.WithMeta(MetaKeyTraceID, traceID).WithMeta(MetaKeySpanID, spanID)
}
