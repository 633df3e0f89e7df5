package models

import (
	"strconv"
	"time"
)

type ConversationStatus string

const (
	ConversationStatusOpen             ConversationStatus = "open"
	ConversationStatusActive           ConversationStatus = "active"
	ConversationStatusResolvedByAI     ConversationStatus = "resolved_by_ai"
	ConversationStatusAssignedToLawyer ConversationStatus = "assigned_to_lawyer"
	ConversationStatusCompleted        ConversationStatus = "completed"
	ConversationStatusAbandoned        ConversationStatus = "abandoned"
)

// AllConversationStatuses lists every status in lifecycle order.
var AllConversationStatuses = []ConversationStatus{
	ConversationStatusOpen,
	ConversationStatusActive,
	ConversationStatusResolvedByAI,
	ConversationStatusAssignedToLawyer,
	ConversationStatusCompleted,
	ConversationStatusAbandoned,
}

// IsTerminal reports whether no further client or AI activity is accepted.
func (s ConversationStatus) IsTerminal() bool {
	switch s {
	case ConversationStatusCompleted, ConversationStatusAbandoned, ConversationStatusResolvedByAI:
		return true
	}
	return false
}

func (s ConversationStatus) IsValid() bool {
	for _, st := range AllConversationStatuses {
		if st == s {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority maps an urgency level onto a Priority, defaulting to medium.
func ParsePriority(level string) Priority {
	switch Priority(level) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(level)
	}
	return PriorityMedium
}

// Classification is derived by the assistant while triaging the case.
type Classification struct {
	Category   string `json:"category,omitempty"`
	Complexity string `json:"complexity,omitempty"`
	LegalArea  string `json:"legal_area,omitempty"`
}

func (c *Classification) IsEmpty() bool {
	return c == nil || (c.Category == "" && c.Complexity == "" && c.LegalArea == "")
}

// Conversation is a single intake chat, later called a case once a lawyer is involved.
type Conversation struct {
	ID             string             `json:"id"`
	RoomID         string             `json:"room_id"`
	OwnerUserID    string             `json:"owner_user_id"`
	Status         ConversationStatus `json:"status"`
	SequenceNumber int                `json:"conversation_sequence_number"`
	Title          string             `json:"title"`
	IsActive       bool               `json:"is_active"`
	UnreadCount    int                `json:"unread_count"`
	Priority       Priority           `json:"priority"`
	Classification *Classification    `json:"classification,omitempty"`

	// Escalation
	LawyerNeeded        bool     `json:"lawyer_needed"`
	AssignedLawyerID    string   `json:"assigned_lawyer_id,omitempty"`
	Specialization      string   `json:"specialization,omitempty"`
	CaseSummary         string   `json:"case_summary,omitempty"`
	RequiredSpecialties []string `json:"required_specialties,omitempty"`
	ResolutionNote      string   `json:"resolution_note,omitempty"`

	// Contact captured during registration
	LinkedUserID       string `json:"linked_user_id,omitempty"`
	ContactName        string `json:"contact_name,omitempty"`
	ContactEmail       string `json:"contact_email,omitempty"`
	ContactPhone       string `json:"contact_phone,omitempty"`
	ProblemDescription string `json:"problem_description,omitempty"`

	FeedbackRequested bool `json:"feedback_requested"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`

	// Version counts stored writes. Conditional updates compare it.
	Version int `json:"-"`
}

func NewConversation(id, roomID, ownerUserID string, sequence int) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:             id,
		RoomID:         roomID,
		OwnerUserID:    ownerUserID,
		Status:         ConversationStatusOpen,
		SequenceNumber: sequence,
		Title:          DefaultConversationTitle(sequence),
		IsActive:       true,
		Priority:       PriorityMedium,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// DefaultConversationTitle names a conversation before the assistant learns its subject.
func DefaultConversationTitle(sequence int) string {
	if sequence <= 1 {
		return "Nova conversa"
	}
	return "Conversa " + strconv.Itoa(sequence)
}

// LawyerRoomID is the staff-only sub-room of a case.
func LawyerRoomID(roomID string) string {
	return "lawyer-" + roomID
}

// UserRoomID is the account-wide room every connection of a user joins.
func UserRoomID(userID string) string {
	return "user-" + userID
}

// ChangeStatus transitions the conversation to a new status with validation
func (c *Conversation) ChangeStatus(newStatus ConversationStatus) error {
	if err := ValidateTransition(c.Status, newStatus); err != nil {
		return err
	}
	now := time.Now().UTC()
	c.Status = newStatus
	c.UpdatedAt = now
	if newStatus.IsTerminal() && c.ClosedAt == nil {
		c.ClosedAt = &now
	}
	return nil
}

// CanTransitionTo checks if the conversation can transition to the given status
func (c *Conversation) CanTransitionTo(newStatus ConversationStatus) bool {
	return IsValidTransition(c.Status, newStatus)
}

// AssignLawyer claims the case for a lawyer and moves it to assigned_to_lawyer.
func (c *Conversation) AssignLawyer(lawyerID string) error {
	if err := c.ChangeStatus(ConversationStatusAssignedToLawyer); err != nil {
		return err
	}
	now := time.Now().UTC()
	c.AssignedLawyerID = lawyerID
	c.ClaimedAt = &now
	return nil
}

// Close completes an assigned case with the lawyer's resolution note.
func (c *Conversation) Close(note string) error {
	if err := c.ChangeStatus(ConversationStatusCompleted); err != nil {
		return err
	}
	c.ResolutionNote = note
	return nil
}

// Reopen brings a terminal conversation back for staff review. A case with
// an assigned lawyer returns to that lawyer so the assistant stays out of it.
func (c *Conversation) Reopen() error {
	to := ConversationStatusActive
	if c.AssignedLawyerID != "" {
		to = ConversationStatusAssignedToLawyer
	}
	if !c.Status.IsTerminal() {
		return NewInvalidTransitionError(c.Status, to)
	}
	c.Status = to
	c.ClosedAt = nil
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// BelongsTo reports whether userID owns the conversation or was linked to it
// by verifying the contact captured in it.
func (c *Conversation) BelongsTo(userID string) bool {
	if userID == "" {
		return false
	}
	return c.OwnerUserID == userID || c.LinkedUserID == userID
}

// Touch records message activity.
func (c *Conversation) Touch(at time.Time) {
	c.LastMessageAt = &at
	c.UpdatedAt = at
}

// Clone returns a deep copy safe to mutate independently.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Classification != nil {
		cl := *c.Classification
		cp.Classification = &cl
	}
	if c.RequiredSpecialties != nil {
		cp.RequiredSpecialties = append([]string(nil), c.RequiredSpecialties...)
	}
	return &cp
}
