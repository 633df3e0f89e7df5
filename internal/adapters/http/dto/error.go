package dto

import "github.com/longregen/counsel/internal/domain"

// ErrorResponse is the body of every failed REST call. Error carries the
// same code an error frame would.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Status  int    `json:"status,omitempty"`
}

func NewErrorResponse(code string, message string, status int) *ErrorResponse {
	return &ErrorResponse{
		Error:   code,
		Message: message,
		Status:  status,
	}
}

// PublicMessage is the text shown to clients for err. Internal failures are
// not described.
func PublicMessage(err error) string {
	switch domain.ErrorCode(err) {
	case domain.CodeInternal:
		return "internal error"
	case domain.CodePersistenceFailure:
		return "the request could not be saved, try again"
	}
	return err.Error()
}
