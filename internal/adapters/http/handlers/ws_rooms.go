package handlers

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/adapters/http/dto"
	"github.com/longregen/counsel/internal/adapters/metrics"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/pkg/protocol"
)

// room is one broadcast group. Its lock is held while a broadcast enqueues
// frames so every member observes the same order.
type room struct {
	mu      sync.Mutex
	members map[*Session]struct{}
}

// RoomHub tracks which sessions are subscribed to which rooms in this process.
// It implements ports.ConversationNotifier.
type RoomHub struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func NewRoomHub() *RoomHub {
	return &RoomHub{rooms: make(map[string]*room)}
}

// Join subscribes s to roomID. Joining twice is a no-op.
func (h *RoomHub) Join(s *Session, roomID string) {
	if roomID == "" {
		return
	}
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{members: make(map[*Session]struct{})}
		h.rooms[roomID] = r
	}
	r.mu.Lock()
	r.members[s] = struct{}{}
	r.mu.Unlock()
	h.mu.Unlock()

	s.track(roomID)
}

// Leave unsubscribes s from roomID and forgets the room once it is empty.
func (h *RoomHub) Leave(s *Session, roomID string) {
	h.mu.Lock()
	if r, ok := h.rooms[roomID]; ok {
		r.mu.Lock()
		delete(r.members, s)
		empty := len(r.members) == 0
		r.mu.Unlock()
		if empty {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	s.untrack(roomID)
}

// LeaveAll removes s from every room it joined.
func (h *RoomHub) LeaveAll(s *Session) {
	for _, roomID := range s.roomIDs() {
		h.Leave(s, roomID)
	}
}

// Members returns the number of sessions in roomID.
func (h *RoomHub) Members(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Broadcast enqueues an event for every member of roomID. Members whose send
// queue is full are evicted after the room lock is released.
func (h *RoomHub) Broadcast(roomID string, event protocol.Event, conversationID string, body interface{}) {
	var slow []*Session

	h.mu.RLock()
	if r, ok := h.rooms[roomID]; ok {
		r.mu.Lock()
		for s := range r.members {
			if !s.enqueue(event, conversationID, body) {
				slow = append(slow, s)
			}
		}
		r.mu.Unlock()
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.evict(s)
	}
}

// evict drops a session that cannot keep up.
func (h *RoomHub) evict(s *Session) {
	metrics.WSSlowClientsDropped.Inc()
	log.Warn().Str("session_id", s.ID()).Str("user_id", s.identity.UserID).Msg("send queue full, dropping connection")
	h.LeaveAll(s)
	s.Close()
}

// ============================================================================
// ports.ConversationNotifier
// ============================================================================

func (h *RoomHub) NotifyTypingStart(conv *models.Conversation) {
	h.Broadcast(conv.RoomID, protocol.EventTypingStart, conv.ID, protocol.Typing{ConversationID: conv.ID})
}

func (h *RoomHub) NotifyTypingStop(conv *models.Conversation) {
	h.Broadcast(conv.RoomID, protocol.EventTypingStop, conv.ID, protocol.Typing{ConversationID: conv.ID})
}

// NotifyMessage sends a visible message to the conversation room. Audit
// records never leave the server.
func (h *RoomHub) NotifyMessage(conv *models.Conversation, msg *models.Message) {
	if msg.HiddenFromClients() {
		return
	}
	h.Broadcast(conv.RoomID, protocol.EventReceiveMessage, conv.ID, dto.MessageFromModel(msg))
}

func (h *RoomHub) NotifyLawyerMessage(conv *models.Conversation, msg *models.Message) {
	h.Broadcast(models.LawyerRoomID(conv.RoomID), protocol.EventReceiveLawyerMessage, conv.ID, dto.MessageFromModel(msg))
}

// NotifyConversationUpdated reaches the owner on every device and the staff
// following the case.
func (h *RoomHub) NotifyConversationUpdated(conv *models.Conversation) {
	body := protocol.ConversationUpdated{Conversation: dto.ConversationFromModel(conv)}
	for _, room := range userRooms(conv) {
		h.Broadcast(room, protocol.EventConversationUpdated, conv.ID, body)
	}
	h.Broadcast(models.LawyerRoomID(conv.RoomID), protocol.EventConversationUpdated, conv.ID, body)
}

func (h *RoomHub) NotifyFeedbackPrompt(conv *models.Conversation, prompt *models.FeedbackPrompt) {
	body := protocol.FeedbackModal{
		ConversationID: prompt.ConversationID,
		Reason:         prompt.Reason,
		Context:        prompt.Context,
	}
	for _, room := range userRooms(conv) {
		h.Broadcast(room, protocol.EventShowFeedbackModal, conv.ID, body)
	}
}

// userRooms are the per-user rooms of the owner and of a verified linked user.
func userRooms(conv *models.Conversation) []string {
	rooms := []string{models.UserRoomID(conv.OwnerUserID)}
	if conv.LinkedUserID != "" && conv.LinkedUserID != conv.OwnerUserID {
		rooms = append(rooms, models.UserRoomID(conv.LinkedUserID))
	}
	return rooms
}
