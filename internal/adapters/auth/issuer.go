package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/longregen/counsel/internal/domain/models"
)

const anonymousUserPrefix = "anon_"

// TokenIssuer signs connection tokens with the secret the Authenticator checks.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("auth secret must be provided")
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for identity valid for ttl.
func (i *TokenIssuer) Issue(identity *models.ConnectionIdentity, ttl time.Duration) (string, time.Time, error) {
	if identity == nil || identity.UserID == "" {
		return "", time.Time{}, errors.New("identity must carry a user id")
	}

	now := i.now().UTC()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Anonymous:   identity.IsAnonymous,
		Role:        string(identity.Role),
		Permissions: identity.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueAnonymous mints a fresh anonymous visitor identity and its token.
func (i *TokenIssuer) IssueAnonymous(ttl time.Duration) (*models.ConnectionIdentity, string, time.Time, error) {
	identity := &models.ConnectionIdentity{
		UserID:      anonymousUserPrefix + uuid.NewString(),
		IsAnonymous: true,
		Role:        models.RoleClient,
	}
	token, expiresAt, err := i.Issue(identity, ttl)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return identity, token, expiresAt, nil
}
