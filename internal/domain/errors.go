package domain

import "errors"

// Common domain errors
var (
	// Authentication errors
	ErrAuthRequired = errors.New("authentication required")
	ErrInvalidToken = errors.New("invalid or expired token")

	// Authorization errors
	ErrAuthorizationDenied = errors.New("authorization denied")

	// Conversation errors
	ErrConversationNotFound    = errors.New("conversation not found")
	ErrConversationArchived    = errors.New("conversation is archived")
	ErrInvalidStatusTransition = errors.New("invalid conversation status transition")
	ErrStaleConversation       = errors.New("conversation status changed concurrently")
	ErrCaseAlreadyClaimed      = errors.New("case already claimed by another lawyer")
	ErrSequenceConflict        = errors.New("conversation sequence number already taken")

	// Message errors
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidSender   = errors.New("invalid message sender")
	ErrEmptyContent    = errors.New("content cannot be empty")

	// Identity errors
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidContact       = errors.New("invalid contact")
	ErrVerificationNotFound = errors.New("no pending verification for contact")
	ErrVerificationExpired  = errors.New("verification code expired")
	ErrTooManyAttempts      = errors.New("too many verification attempts")
	ErrInvalidCode          = errors.New("invalid verification code")

	// Tool errors
	ErrToolNotFound = errors.New("tool not found")

	// Collaborator errors
	ErrGenerationUnavailable = errors.New("text generation unavailable")
	ErrPersistenceFailure    = errors.New("persistence failure")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID format")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// Error codes carried on DomainError.Code and on client error frames.
const (
	CodeAuthError             = "auth_error"
	CodeAuthorizationDenied   = "authorization_denied"
	CodeNotFound              = "not_found"
	CodeGenerationUnavailable = "generation_unavailable"
	CodePersistenceFailure    = "persistence_failure"
	CodeValidation            = "validation_error"
	CodeInternal              = "internal_error"
)

// DomainError wraps a domain error with additional context
type DomainError struct {
	Err     error
	Message string
	Code    string
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func NewDomainError(err error, message string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
	}
}

func NewDomainErrorWithCode(err error, message, code string) *DomainError {
	return &DomainError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// ErrorCode maps an error onto the client-facing taxonomy.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}

	switch {
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrInvalidToken):
		return CodeAuthError
	case errors.Is(err, ErrAuthorizationDenied), errors.Is(err, ErrCaseAlreadyClaimed):
		return CodeAuthorizationDenied
	case errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrUserNotFound), errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrGenerationUnavailable):
		return CodeGenerationUnavailable
	case errors.Is(err, ErrPersistenceFailure):
		return CodePersistenceFailure
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrEmptyContent), errors.Is(err, ErrInvalidContact),
		errors.Is(err, ErrInvalidStatusTransition):
		return CodeValidation
	default:
		return CodeInternal
	}
}

// Reasons carried by GenerationError
const (
	GenerationQuotaExceeded = "quota_exceeded"
	GenerationAuthFailed    = "auth_failed"
	GenerationModelNotFound = "model_not_found"
	GenerationMalformed     = "malformed"
	GenerationUnavailable   = "unavailable"
)

// GenerationError is a classified failure of the text-generation collaborator.
// It matches ErrGenerationUnavailable under errors.Is.
type GenerationError struct {
	Reason    string
	Retryable bool
	Err       error
}

func NewGenerationError(reason string, err error) *GenerationError {
	return &GenerationError{
		Reason:    reason,
		Retryable: reason != GenerationAuthFailed,
		Err:       err,
	}
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation unavailable: " + e.Reason
	}
	return "generation unavailable (" + e.Reason + "): " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) Is(target error) bool {
	return target == ErrGenerationUnavailable
}
