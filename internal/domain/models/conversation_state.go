package models

import (
	"fmt"
	"sort"
)

// ConversationTransition represents a state transition
type ConversationTransition struct {
	From ConversationStatus
	To   ConversationStatus
}

// validTransitions defines the allowed state transitions for conversations
var validTransitions = map[ConversationTransition]bool{
	// From open
	{ConversationStatusOpen, ConversationStatusActive}:    true,
	{ConversationStatusOpen, ConversationStatusAbandoned}: true,

	// From active
	{ConversationStatusActive, ConversationStatusResolvedByAI}:     true,
	{ConversationStatusActive, ConversationStatusAssignedToLawyer}: true,
	{ConversationStatusActive, ConversationStatusAbandoned}:        true,

	// From assigned_to_lawyer
	{ConversationStatusAssignedToLawyer, ConversationStatusCompleted}: true,

	// completed, abandoned and resolved_by_ai are terminal; only Reopen leaves them
}

// ValidateTransition checks if a state transition is valid and returns an error if not
func ValidateTransition(from, to ConversationStatus) error {
	// No-op transition is always valid
	if from == to {
		return nil
	}

	transition := ConversationTransition{From: from, To: to}
	if !validTransitions[transition] {
		return NewInvalidTransitionError(from, to)
	}

	return nil
}

// IsValidTransition checks if a transition between two states is valid
func IsValidTransition(from, to ConversationStatus) bool {
	return ValidateTransition(from, to) == nil
}

// GetValidTransitions returns all valid transitions from a given state
func GetValidTransitions(from ConversationStatus) []ConversationStatus {
	validStates := make([]ConversationStatus, 0)

	for transition := range validTransitions {
		if transition.From == from {
			validStates = append(validStates, transition.To)
		}
	}
	sort.Slice(validStates, func(i, j int) bool { return validStates[i] < validStates[j] })

	return validStates
}

// InvalidTransitionError represents an error for invalid state transitions
type InvalidTransitionError struct {
	From    ConversationStatus
	To      ConversationStatus
	Message string
}

func (e *InvalidTransitionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("invalid conversation state transition from '%s' to '%s'", e.From, e.To)
}

// NewInvalidTransitionError creates a new InvalidTransitionError with a descriptive message
func NewInvalidTransitionError(from, to ConversationStatus) *InvalidTransitionError {
	return &InvalidTransitionError{
		From:    from,
		To:      to,
		Message: generateTransitionErrorMessage(from, to),
	}
}

func generateTransitionErrorMessage(from, to ConversationStatus) string {
	if from.IsTerminal() {
		return fmt.Sprintf("cannot transition from terminal state '%s' to '%s'", from, to)
	}
	validStates := GetValidTransitions(from)
	if len(validStates) > 0 {
		return fmt.Sprintf("invalid transition from '%s' to '%s': valid transitions are %v", from, to, validStates)
	}
	return fmt.Sprintf("invalid transition from '%s' to '%s': no valid transitions from this state", from, to)
}

// CanAbandon checks if a conversation can be abandoned from its current state
func CanAbandon(status ConversationStatus) bool {
	return status != ConversationStatusAbandoned && IsValidTransition(status, ConversationStatusAbandoned)
}
