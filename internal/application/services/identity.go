package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longregen/counsel/internal/adapters/metrics"
	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
	"github.com/longregen/counsel/internal/ports"
)

// IdentityService resolves contacts captured during intake to users and
// proves contact ownership with one-time codes.
type IdentityService struct {
	userRepo      ports.UserRepository
	codeRepo      ports.VerificationCodeRepository
	codeSender    ports.CodeSender
	conversations *ConversationService
	idGenerator   ports.IDGenerator
	tx            ports.TransactionManager
	now           func() time.Time
}

func NewIdentityService(
	userRepo ports.UserRepository,
	codeRepo ports.VerificationCodeRepository,
	codeSender ports.CodeSender,
	conversations *ConversationService,
	idGenerator ports.IDGenerator,
) *IdentityService {
	return &IdentityService{
		userRepo:      userRepo,
		codeRepo:      codeRepo,
		codeSender:    codeSender,
		conversations: conversations,
		idGenerator:   idGenerator,
		now:           time.Now,
	}
}

// WithTransactions makes user activation and conversation linking commit
// together.
func (s *IdentityService) WithTransactions(tx ports.TransactionManager) *IdentityService {
	s.tx = tx
	return s
}

func (s *IdentityService) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithTransaction(ctx, fn)
}

// Resolve looks the contact up by email, then phone. A verified user is
// connected immediately; anyone else gets a verification code.
func (s *IdentityService) Resolve(ctx context.Context, name string, contact models.Contact) (*models.Resolution, error) {
	if contact.IsEmpty() {
		return nil, domain.NewDomainError(domain.ErrInvalidContact, "email or phone is required")
	}

	user, err := s.lookup(ctx, contact)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	if user != nil && user.IsVerified {
		return &models.Resolution{Outcome: models.ResolutionConnectedExisting, User: user, Contact: contact}, nil
	}

	outcome := models.ResolutionNeedsVerification
	if user == nil {
		user, err = s.createProvisional(ctx, name, contact)
		if err != nil {
			return nil, err
		}
		outcome = models.ResolutionCreatedProvisional
		if user.IsVerified {
			// Lost a create race against a user who has since verified.
			return &models.Resolution{Outcome: models.ResolutionConnectedExisting, User: user, Contact: contact}, nil
		}
	}

	res := &models.Resolution{Outcome: outcome, User: user, Contact: contact}
	expiresAt, sent, err := s.issueCode(ctx, user, contact)
	if err != nil {
		return nil, err
	}
	res.ExpiresAt = &expiresAt
	res.CodeSent = sent
	return res, nil
}

// CreatePlaceholder records a provisional user for a registration that
// supplied no usable contact. No code is issued.
func (s *IdentityService) CreatePlaceholder(ctx context.Context, name, conversationID string) (*models.Resolution, error) {
	contact := models.PlaceholderContact(conversationID)

	user, err := s.userRepo.GetByEmail(ctx, contact.Email)
	if errors.Is(err, domain.ErrUserNotFound) {
		user, err = s.createProvisional(ctx, name, contact)
	}
	if err != nil {
		return nil, err
	}

	return &models.Resolution{Outcome: models.ResolutionCreatedProvisional, User: user, Contact: contact}, nil
}

// Verify checks a submitted code. Every call consumes an attempt, and once
// the limit is reached the code is refused without being compared.
func (s *IdentityService) Verify(ctx context.Context, conversationID string, contact models.Contact, code string) (*models.User, error) {
	key := contact.Key()
	if key == "" {
		return nil, domain.NewDomainError(domain.ErrInvalidContact, "email or phone is required")
	}

	rec, err := s.codeRepo.Get(ctx, key)
	if err != nil {
		s.recordAttempt(err)
		return nil, err
	}

	prev, err := s.codeRepo.IncrementAttempts(ctx, key)
	if err != nil {
		s.recordAttempt(err)
		return nil, err
	}

	switch {
	case rec.Verified:
		err = domain.NewDomainError(domain.ErrVerificationNotFound, "code already used")
	case prev >= rec.MaxAttempts:
		err = domain.ErrTooManyAttempts
	case !rec.Matches(strings.TrimSpace(code)):
		remaining := rec.MaxAttempts - prev - 1
		err = domain.NewDomainError(domain.ErrInvalidCode, fmt.Sprintf("%d attempts remaining", remaining))
	}
	if err != nil {
		s.recordAttempt(err)
		log.Info().Err(err).Str("contact", contact.String()).Int("attempt", prev+1).Msg("verification rejected")
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		user.Activate()
		if err := s.userRepo.Update(ctx, user); err != nil {
			return persistenceError(err)
		}
		if conversationID == "" {
			return nil
		}
		_, err := s.conversations.Patch(ctx, conversationID, func(c *models.Conversation) error {
			c.LinkedUserID = user.ID
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.codeRepo.MarkVerified(ctx, key); err != nil {
		log.Warn().Err(err).Str("contact", contact.String()).Msg("failed to mark code verified")
	}

	s.recordAttempt(nil)
	log.Info().Str("user_id", user.ID).Str("conversation_id", conversationID).Msg("contact verified")
	return user, nil
}

func (s *IdentityService) lookup(ctx context.Context, contact models.Contact) (*models.User, error) {
	if contact.Email != "" {
		user, err := s.userRepo.GetByEmail(ctx, contact.Email)
		if err == nil || !errors.Is(err, domain.ErrUserNotFound) {
			return user, err
		}
	}
	if contact.Phone != "" {
		return s.userRepo.GetByPhone(ctx, contact.Phone)
	}
	return nil, domain.ErrUserNotFound
}

func (s *IdentityService) createProvisional(ctx context.Context, name string, contact models.Contact) (*models.User, error) {
	user := models.NewProvisionalUser(s.idGenerator.GenerateUserID(), strings.TrimSpace(name), contact)
	err := s.userRepo.Create(ctx, user)
	if errors.Is(err, domain.ErrInvalidContact) {
		// The contact was registered concurrently.
		return s.lookup(ctx, contact)
	}
	if err != nil {
		return nil, persistenceError(err)
	}
	log.Info().Str("user_id", user.ID).Str("contact", contact.String()).Msg("provisional user created")
	return user, nil
}

func (s *IdentityService) issueCode(ctx context.Context, user *models.User, contact models.Contact) (time.Time, bool, error) {
	code, err := generateCode()
	if err != nil {
		return time.Time{}, false, err
	}

	rec, err := models.NewVerificationCode(contact, user.ID, code, s.now().UTC())
	if err != nil {
		return time.Time{}, false, err
	}
	if err := s.codeRepo.Save(ctx, rec); err != nil {
		return time.Time{}, false, persistenceError(err)
	}

	if err := s.codeSender.SendVerificationCode(ctx, contact, code, rec.ExpiresAt); err != nil {
		log.Warn().Err(err).Str("contact", contact.String()).Msg("failed to deliver verification code")
		return rec.ExpiresAt, false, nil
	}
	return rec.ExpiresAt, true, nil
}

func (s *IdentityService) recordAttempt(err error) {
	outcome := "verified"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTooManyAttempts):
		outcome = "locked"
	case errors.Is(err, domain.ErrInvalidCode):
		outcome = "invalid"
	case errors.Is(err, domain.ErrVerificationExpired):
		outcome = "expired"
	case errors.Is(err, domain.ErrVerificationNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	metrics.VerificationAttemptsTotal.WithLabelValues(outcome).Inc()
}

func generateCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < models.VerificationCodeLength; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", models.VerificationCodeLength, n.Int64()), nil
}
