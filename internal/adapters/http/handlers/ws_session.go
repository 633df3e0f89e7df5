package handlers

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/pkg/protocol"
)

const writeWait = 10 * time.Second

// Session is the server side of one WebSocket connection. The identity is
// fixed at handshake; rooms and codec change as the client talks.
type Session struct {
	id       string
	conn     *websocket.Conn
	identity *models.ConnectionIdentity
	hub      *RoomHub

	send  chan *protocol.Envelope
	turns chan *protocol.Frame
	done  chan struct{}

	mu       sync.Mutex
	codec    protocol.Codec
	stanzaID int32
	rooms    map[string]struct{}
	closed   bool

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, identity *models.ConnectionIdentity, hub *RoomHub, codec protocol.Codec, queueSize, turnBacklog int) *Session {
	return &Session{
		id:       uuid.NewString(),
		conn:     conn,
		identity: identity,
		hub:      hub,
		send:     make(chan *protocol.Envelope, queueSize),
		turns:    make(chan *protocol.Frame, turnBacklog),
		done:     make(chan struct{}),
		codec:    codec,
		rooms:    make(map[string]struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Identity() *models.ConnectionIdentity { return s.identity }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// enqueue assigns the next server stanza and queues the envelope without
// blocking. It returns false when the queue is full. A closed session
// swallows the event.
func (s *Session) enqueue(event protocol.Event, conversationID string, body interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}

	s.stanzaID--
	env := protocol.NewEnvelope(s.stanzaID, conversationID, event, body)
	select {
	case s.send <- env:
		return true
	default:
		s.stanzaID++
		return false
	}
}

// push sends an event to this session alone.
func (s *Session) push(event protocol.Event, conversationID string, body interface{}) {
	if !s.enqueue(event, conversationID, body) {
		s.hub.evict(s)
	}
}

func (s *Session) pushError(originating *protocol.Frame, code, message string) {
	body := protocol.ErrorMessage{Code: code, Message: message}
	conversationID := ""
	if originating != nil {
		body.OriginatingStanza = originating.StanzaID
		conversationID = originating.ConversationID
	}
	s.push(protocol.EventError, conversationID, body)
}

func (s *Session) setCodec(c protocol.Codec) {
	s.mu.Lock()
	s.codec = c
	s.mu.Unlock()
}

func (s *Session) currentCodec() protocol.Codec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec
}

func (s *Session) track(roomID string) {
	s.mu.Lock()
	s.rooms[roomID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) untrack(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

func (s *Session) roomIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Close stops the pumps and closes the socket. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// writePump is the only writer of data frames on the connection.
func (s *Session) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case env := <-s.send:
			codec := s.currentCodec()
			data, err := codec.Encode(env)
			if err != nil {
				log.Error().Err(err).Str("session_id", s.id).Str("event", string(env.Event)).Msg("failed to encode envelope")
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(frameType(codec), data); err != nil {
				log.Debug().Err(err).Str("session_id", s.id).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			return
		}
	}
}

// frameType maps a codec onto the WebSocket frame that carries it.
func frameType(c protocol.Codec) int {
	if c == protocol.JSON {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}
