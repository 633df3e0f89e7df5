package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

const (
	DefaultCookieName = "counsel_token"
	tokenQueryParam   = "token"
)

// Credential sources, in the order they are consulted.
const (
	SourceQuery  = "query"
	SourceCookie = "cookie"
	SourceHeader = "header"
)

// Claims is the payload of a connection token.
type Claims struct {
	Anonymous   bool     `json:"anonymous"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret     string
	Issuer     string
	CookieName string
	Leeway     time.Duration
}

// Authenticator turns the credential presented on a connection handshake into
// a ConnectionIdentity. It performs no store I/O.
type Authenticator struct {
	secret     []byte
	cookieName string
	parser     *jwt.Parser
}

func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth secret must be provided")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &Authenticator{
		secret:     []byte(cfg.Secret),
		cookieName: cfg.CookieName,
		parser:     jwt.NewParser(opts...),
	}, nil
}

// Authenticate fails closed: a missing credential yields domain.ErrAuthRequired
// and anything that does not verify yields domain.ErrInvalidToken.
func (a *Authenticator) Authenticate(r *http.Request) (*models.ConnectionIdentity, error) {
	raw, source := a.credential(r)
	if raw == "" {
		return nil, domain.ErrAuthRequired
	}

	identity, err := a.Verify(raw)
	if err != nil {
		// Never log the credential itself
		log.Warn().Err(err).Str("source", source).Str("remote_addr", r.RemoteAddr).Msg("connection credential rejected")
		return nil, err
	}
	return identity, nil
}

// Verify validates a raw token and derives the identity it carries.
func (a *Authenticator) Verify(raw string) (*models.ConnectionIdentity, error) {
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, domain.NewDomainErrorWithCode(domain.ErrInvalidToken, describe(err), domain.CodeAuthError)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, domain.NewDomainErrorWithCode(domain.ErrInvalidToken, "token has no subject", domain.CodeAuthError)
	}

	identity := &models.ConnectionIdentity{
		UserID:          claims.Subject,
		IsAnonymous:     claims.Anonymous,
		IsAuthenticated: !claims.Anonymous,
		Role:            models.ParseRole(claims.Role),
		Permissions:     claims.Permissions,
	}
	if claims.Anonymous {
		// Anonymous visitors are always plain clients whatever the token says
		identity.Role = models.RoleClient
		identity.Permissions = nil
	}
	return identity, nil
}

func (a *Authenticator) credential(r *http.Request) (string, string) {
	if token := strings.TrimSpace(r.URL.Query().Get(tokenQueryParam)); token != "" {
		return token, SourceQuery
	}
	if cookie, err := r.Cookie(a.cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value), SourceCookie
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token, SourceHeader
	}
	return "", ""
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func describe(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "token signature invalid"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token not valid yet"
	default:
		return fmt.Sprintf("token rejected: %v", err)
	}
}
