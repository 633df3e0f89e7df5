package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/longregen/counsel/internal/adapters/http/dto"
	"github.com/longregen/counsel/internal/adapters/http/middleware"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, code string, message string, status int) {
	respondJSON(w, dto.NewErrorResponse(code, message, status), status)
}

// respondDomainError maps err onto the error taxonomy and its HTTP status.
func respondDomainError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	respondError(w, code, dto.PublicMessage(err), statusFor(code))
}

func statusFor(code string) int {
	switch code {
	case domain.CodeAuthError:
		return http.StatusUnauthorized
	case domain.CodeAuthorizationDenied:
		return http.StatusForbidden
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeGenerationUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requireIdentity returns the identity stored by the auth middleware.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*models.ConnectionIdentity, bool) {
	identity := middleware.IdentityFrom(r.Context())
	if identity == nil {
		respondError(w, domain.CodeAuthError, "authentication required", http.StatusUnauthorized)
		return nil, false
	}
	return identity, true
}

// parseIntQuery parses an integer query parameter with a default value
func parseIntQuery(r *http.Request, name string, defaultValue int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil || intValue < 0 {
		return defaultValue
	}
	return intValue
}

// validateURLParam validates and returns a URL parameter
func validateURLParam(r *http.Request, w http.ResponseWriter, paramName, errorField string) (string, bool) {
	value := chi.URLParam(r, paramName)
	if value == "" {
		respondError(w, domain.CodeValidation, errorField+" is required", http.StatusBadRequest)
		return "", false
	}
	return value, true
}

// decodeJSON decodes JSON request body with error handling
func decodeJSON[T any](r *http.Request, w http.ResponseWriter) (*T, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024) // 1MB limit

	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, domain.CodeValidation, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}
