package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMissingEvent is returned for envelopes that do not name an event.
var ErrMissingEvent = errors.New("envelope has no event")

// Codec serializes envelopes for one kind of WebSocket frame.
type Codec interface {
	Name() string
	Encode(env *Envelope) ([]byte, error)
	Decode(data []byte) (*Frame, error)
}

// Frame is an inbound envelope whose body has not been decoded yet.
type Frame struct {
	StanzaID       int32
	Event          Event
	ConversationID string
	Meta           map[string]interface{}

	body      []byte
	unmarshal func([]byte, interface{}) error
}

// Bind decodes the body into v. A missing body leaves v untouched.
func (f *Frame) Bind(v interface{}) error {
	if len(f.body) == 0 || f.unmarshal == nil {
		return nil
	}
	if err := f.unmarshal(f.body, v); err != nil {
		return fmt.Errorf("failed to decode %s body: %w", f.Event, err)
	}
	return nil
}

var (
	// Msgpack is used on binary frames.
	Msgpack Codec = msgpackCodec{}
	// JSON is used on text frames.
	JSON Codec = jsonCodec{}
)

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Encode(env *Envelope) ([]byte, error) {
	return msgpack.Marshal(env)
}

func (msgpackCodec) Decode(data []byte) (*Frame, error) {
	var raw struct {
		StanzaID       int32                  `msgpack:"stanzaId"`
		Event          Event                  `msgpack:"event"`
		ConversationID string                 `msgpack:"conversationId"`
		Meta           map[string]interface{} `msgpack:"meta"`
		Body           msgpack.RawMessage     `msgpack:"body"`
	}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if raw.Event == "" {
		return nil, ErrMissingEvent
	}

	body := []byte(raw.Body)
	// 0xc0 is msgpack nil
	if len(body) == 1 && body[0] == 0xc0 {
		body = nil
	}
	return &Frame{
		StanzaID:       raw.StanzaID,
		Event:          raw.Event,
		ConversationID: raw.ConversationID,
		Meta:           raw.Meta,
		body:           body,
		unmarshal:      msgpack.Unmarshal,
	}, nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (jsonCodec) Decode(data []byte) (*Frame, error) {
	var raw struct {
		StanzaID       int32                  `json:"stanzaId"`
		Event          Event                  `json:"event"`
		ConversationID string                 `json:"conversationId"`
		Meta           map[string]interface{} `json:"meta"`
		Body           json.RawMessage        `json:"body"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if raw.Event == "" {
		return nil, ErrMissingEvent
	}

	body := []byte(raw.Body)
	if string(body) == "null" {
		body = nil
	}
	return &Frame{
		StanzaID:       raw.StanzaID,
		Event:          raw.Event,
		ConversationID: raw.ConversationID,
		Meta:           raw.Meta,
		body:           body,
		unmarshal:      json.Unmarshal,
	}, nil
}
