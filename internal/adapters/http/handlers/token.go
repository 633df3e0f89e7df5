package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/adapters/http/dto"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

// AnonymousIssuer mints tokens for visitors who have not identified yet.
type AnonymousIssuer interface {
	IssueAnonymous(ttl time.Duration) (*models.ConnectionIdentity, string, time.Time, error)
}

type TokenHandler struct {
	issuer       AnonymousIssuer
	ttl          time.Duration
	cookieName   string
	secureCookie bool
}

func NewTokenHandler(issuer AnonymousIssuer, ttl time.Duration, cookieName string, secureCookie bool) *TokenHandler {
	return &TokenHandler{
		issuer:       issuer,
		ttl:          ttl,
		cookieName:   cookieName,
		secureCookie: secureCookie,
	}
}

// Anonymous mints a stable anonymous identity. The token is returned in the
// body and also set as a cookie so browser WebSocket handshakes carry it.
func (h *TokenHandler) Anonymous(w http.ResponseWriter, r *http.Request) {
	identity, token, expiresAt, err := h.issuer.IssueAnonymous(h.ttl)
	if err != nil {
		log.Error().Err(err).Msg("failed to issue anonymous token")
		respondError(w, domain.CodeInternal, "could not issue token", http.StatusInternalServerError)
		return
	}

	if h.cookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookieName,
			Value:    token,
			Path:     "/",
			Expires:  expiresAt,
			HttpOnly: true,
			Secure:   h.secureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}

	log.Debug().Str("user_id", identity.UserID).Time("expires_at", expiresAt).Msg("anonymous identity issued")
	respondJSON(w, dto.AnonymousTokenResponse{
		Token:     token,
		UserID:    identity.UserID,
		ExpiresAt: expiresAt.UnixMilli(),
	}, http.StatusCreated)
}
