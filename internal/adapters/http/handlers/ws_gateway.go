package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/counsel/internal/adapters/http/dto"
	"github.com/longregen/counsel/internal/adapters/metrics"
	"github.com/longregen/counsel/internal/adapters/tracing"
	"github.com/longregen/counsel/internal/application/usecases"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
	"github.com/longregen/counsel/pkg/protocol"
)

// ConnectionAuthenticator derives the identity of a connecting client.
type ConnectionAuthenticator interface {
	Authenticate(r *http.Request) (*models.ConnectionIdentity, error)
}

// ConversationManager is the slice of the conversation service the HTTP
// layer drives.
type ConversationManager interface {
	GetByRoom(ctx context.Context, roomID string) (*models.Conversation, error)
	GetForViewer(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error)
	ListForOwner(ctx context.Context, ownerUserID string) ([]*models.Conversation, error)
	JoinRoom(ctx context.Context, identity *models.ConnectionIdentity) ([]*models.Conversation, error)
	Create(ctx context.Context, ownerUserID string) (*models.Conversation, error)
	Switch(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, []*models.Message, error)
	Claim(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error)
	Close(ctx context.Context, identity *models.ConnectionIdentity, id, note string) (*models.Conversation, error)
	Reopen(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error)
	Abandon(ctx context.Context, identity *models.ConnectionIdentity, id string) (*models.Conversation, error)
	ListCases(ctx context.Context, identity *models.ConnectionIdentity, filter ports.CaseFilter) ([]*models.Conversation, error)
}

type MessageSender interface {
	Execute(ctx context.Context, input usecases.SendMessageInput) (*usecases.SendMessageOutput, error)
}

type LawyerMessageSender interface {
	Execute(ctx context.Context, input usecases.SendLawyerMessageInput) (*usecases.SendLawyerMessageOutput, error)
}

type CodeVerifier interface {
	Execute(ctx context.Context, input usecases.VerifyCodeInput) (*usecases.VerifyCodeOutput, error)
}

// GatewayConfig tunes the WebSocket gateway. Zero values take defaults.
type GatewayConfig struct {
	AllowedOrigins  []string
	AuthGracePeriod time.Duration
	SendQueueSize   int
	TurnBacklog     int
	PingInterval    time.Duration
	ReadTimeout     time.Duration
	MaxMessageSize  int64
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.AuthGracePeriod <= 0 {
		c.AuthGracePeriod = time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.TurnBacklog <= 0 {
		c.TurnBacklog = 16
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.ReadTimeout {
		c.PingInterval = c.ReadTimeout * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	return c
}

// Gateway upgrades authenticated clients to WebSocket sessions and routes
// their events.
type Gateway struct {
	upgrader          websocket.Upgrader
	auth              ConnectionAuthenticator
	hub               *RoomHub
	conversations     ConversationManager
	sendMessage       MessageSender
	sendLawyerMessage LawyerMessageSender
	verifyCode        CodeVerifier
	cfg               GatewayConfig

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func NewGateway(
	auth ConnectionAuthenticator,
	hub *RoomHub,
	conversations ConversationManager,
	sendMessage MessageSender,
	sendLawyerMessage LawyerMessageSender,
	verifyCode CodeVerifier,
	cfg GatewayConfig,
) *Gateway {
	cfg = cfg.withDefaults()

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}

	return &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowed["*"] {
					return true
				}
				return allowed[origin]
			},
		},
		auth:              auth,
		hub:               hub,
		conversations:     conversations,
		sendMessage:       sendMessage,
		sendLawyerMessage: sendLawyerMessage,
		verifyCode:        verifyCode,
		cfg:               cfg,
		sessions:          make(map[*Session]struct{}),
	}
}

// ServeHTTP authenticates, upgrades and runs one session until it ends.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, authErr := g.auth.Authenticate(r)

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade websocket connection")
		return
	}

	codec := requestedCodec(r)
	if authErr != nil {
		metrics.WSAuthFailuresTotal.WithLabelValues(authFailureReason(authErr)).Inc()
		g.reject(conn, codec, authErr)
		return
	}

	s := newSession(conn, identity, g.hub, codec, g.cfg.SendQueueSize, g.cfg.TurnBacklog)
	g.register(s)
	defer g.unregister(s)
	metrics.WSConnectionsActive.Inc()
	defer metrics.WSConnectionsActive.Dec()

	log.Info().
		Str("session_id", s.ID()).
		Str("user_id", identity.UserID).
		Str("role", string(identity.Role)).
		Bool("anonymous", identity.IsAnonymous).
		Msg("websocket session opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.writePump(g.cfg.PingInterval)
	}()
	go func() {
		defer wg.Done()
		g.turnWorker(ctx, s)
	}()

	g.readPump(ctx, s)

	s.Close()
	g.hub.LeaveAll(s)
	cancel()
	wg.Wait()
	// Shutdown can close the session while the read pump is still queueing.
	g.drainTurns(ctx, s)

	log.Info().Str("session_id", s.ID()).Str("user_id", identity.UserID).Msg("websocket session closed")
}

func (g *Gateway) register(s *Session) {
	g.mu.Lock()
	g.sessions[s] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) unregister(s *Session) {
	g.mu.Lock()
	delete(g.sessions, s)
	g.mu.Unlock()
}

// Shutdown closes every open session. http.Server.Shutdown does not track
// hijacked connections.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	open := make([]*Session, 0, len(g.sessions))
	for s := range g.sessions {
		open = append(open, s)
	}
	g.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
	if len(open) > 0 {
		log.Info().Int("sessions", len(open)).Msg("closed websocket sessions")
	}
}

// Sessions reports how many sessions are open.
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// reject reports an authentication failure on the freshly upgraded socket,
// gives the client a grace period to read it, then closes.
func (g *Gateway) reject(conn *websocket.Conn, codec protocol.Codec, cause error) {
	defer conn.Close()

	env := protocol.NewEnvelope(-1, "", protocol.EventError, protocol.ErrorMessage{
		Code:    domain.CodeAuthError,
		Message: cause.Error(),
	})
	data, err := codec.Encode(env)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode auth error")
		return
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(frameType(codec), data); err != nil {
		return
	}

	time.Sleep(g.cfg.AuthGracePeriod)
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
		time.Now().Add(writeWait),
	)
}

func (g *Gateway) readPump(ctx context.Context, s *Session) {
	s.conn.SetReadLimit(g.cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
		return nil
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("session_id", s.ID()).Msg("websocket read error")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))

		codec := protocol.Msgpack
		if messageType == websocket.TextMessage {
			codec = protocol.JSON
		}
		s.setCodec(codec)

		frame, err := codec.Decode(data)
		if err != nil {
			metrics.WSEventsTotal.WithLabelValues("malformed", "error").Inc()
			log.Debug().Err(err).Str("session_id", s.ID()).Msg("failed to decode envelope")
			s.pushError(nil, protocol.ErrCodeMalformedData, "could not decode envelope")
			continue
		}

		if !frame.Event.IsClientEvent() {
			metrics.WSEventsTotal.WithLabelValues("unknown", "error").Inc()
			s.pushError(frame, protocol.ErrCodeUnknownEvent, "unknown event "+string(frame.Event))
			continue
		}

		if frame.Event == protocol.EventSendMessage {
			g.queueTurn(s, frame)
			continue
		}
		g.handle(ctx, s, frame)
	}
}

// queueTurn hands a send-message to the session's turn worker so the read
// pump keeps serving other events while the assistant replies.
func (g *Gateway) queueTurn(s *Session, frame *protocol.Frame) {
	select {
	case s.turns <- frame:
	default:
		metrics.WSEventsTotal.WithLabelValues(string(frame.Event), "rejected").Inc()
		s.pushError(frame, protocol.ErrCodeValidation, "too many messages waiting for a reply")
	}
}

// turnWorker runs queued send-message events one at a time, in arrival order.
// Messages accepted before a disconnect still run once the socket is gone.
func (g *Gateway) turnWorker(ctx context.Context, s *Session) {
	for {
		select {
		case <-s.Done():
			g.drainTurns(ctx, s)
			return
		case frame := <-s.turns:
			g.handle(ctx, s, frame)
		}
	}
}

// drainTurns runs whatever is still queued without honoring cancellation.
func (g *Gateway) drainTurns(ctx context.Context, s *Session) {
	ctx = context.WithoutCancel(ctx)
	for {
		select {
		case frame := <-s.turns:
			g.handle(ctx, s, frame)
		default:
			return
		}
	}
}

func (g *Gateway) handle(ctx context.Context, s *Session, frame *protocol.Frame) {
	ctx, span := tracing.Tracer().Start(ctx, "ws."+string(frame.Event),
		trace.WithAttributes(tracing.WSEvent(string(frame.Event)), tracing.UserID(s.identity.UserID)))
	defer span.End()

	err := g.dispatch(ctx, s, frame)
	if err == nil {
		metrics.WSEventsTotal.WithLabelValues(string(frame.Event), "ok").Inc()
		return
	}

	metrics.WSEventsTotal.WithLabelValues(string(frame.Event), "error").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, "event failed")
	code := domain.ErrorCode(err)
	if code == domain.CodeInternal || code == domain.CodePersistenceFailure {
		log.Error().Err(err).Str("session_id", s.ID()).Str("event", string(frame.Event)).Msg("event failed")
	} else {
		log.Debug().Err(err).Str("session_id", s.ID()).Str("event", string(frame.Event)).Msg("event rejected")
	}
	s.pushError(frame, code, dto.PublicMessage(err))
}

// requestedCodec picks the codec for frames sent before the client has
// spoken. Clients that want JSON from the start pass ?format=json.
func requestedCodec(r *http.Request) protocol.Codec {
	if r.URL.Query().Get("format") == "json" {
		return protocol.JSON
	}
	return protocol.Msgpack
}

func authFailureReason(err error) string {
	if errors.Is(err, domain.ErrAuthRequired) {
		return "missing_credential"
	}
	return "invalid_token"
}
