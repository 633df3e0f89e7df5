package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/longregen/counsel/internal/domain"
)

const (
	// MaxMessageLength caps the text of a single chat message, in runes.
	MaxMessageLength = 8000
	// MaxResolutionNoteLength caps a lawyer's closing note, in runes.
	MaxResolutionNoteLength = 4000
)

// ValidateID checks that an ID is not empty
func ValidateID(id string, entityType string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewDomainError(domain.ErrInvalidID, entityType+" ID cannot be empty")
	}
	return nil
}

// ValidateRequired checks that a required string field is not blank
func ValidateRequired(value string, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return domain.NewDomainError(domain.ErrValidation, fieldName+" is required")
	}
	return nil
}

// ValidateStringLength checks that a string's rune count is within the specified range
func ValidateStringLength(value string, fieldName string, minLen, maxLen int) error {
	length := utf8.RuneCountInString(value)
	if minLen > 0 && length < minLen {
		return domain.NewDomainError(domain.ErrValidation,
			fmt.Sprintf("%s must be at least %d characters (got %d)", fieldName, minLen, length))
	}
	if maxLen > 0 && length > maxLen {
		return domain.NewDomainError(domain.ErrValidation,
			fmt.Sprintf("%s must be at most %d characters (got %d)", fieldName, maxLen, length))
	}
	return nil
}

// ValidateRoomID checks that a room ID names a conversation room
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return domain.NewDomainError(domain.ErrInvalidID, "room ID cannot be empty")
	}
	if !strings.HasPrefix(roomID, "room_") {
		return domain.NewDomainError(domain.ErrInvalidID,
			fmt.Sprintf("room ID must start with 'room_' (got: %s)", roomID))
	}
	return nil
}
