package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	VerificationCodeLength   = 6
	VerificationCodeTTL      = 10 * time.Minute
	DefaultMaxVerifyAttempts = 3
	PlaceholderEmailDomain   = "intake.invalid"
	minPhoneDigits           = 8
	maxPhoneDigits           = 15
)

// User is the identity behind a contact. Provisional users have IsActive=false until verified.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewProvisionalUser(id, name string, contact Contact) *User {
	now := time.Now().UTC()
	return &User{
		ID:        id,
		Name:      name,
		Email:     contact.Email,
		Phone:     contact.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Activate marks the user as having proven ownership of the contact.
func (u *User) Activate() {
	u.IsActive = true
	u.IsVerified = true
	u.UpdatedAt = time.Now().UTC()
}

// Contact is an email and/or phone supplied by a client.
type Contact struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// NormalizeContact trims and canonicalizes a contact, dropping values that do not parse.
func NormalizeContact(email, phone string) Contact {
	var c Contact

	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" {
		if addr, err := mail.ParseAddress(email); err == nil && addr.Address == email && strings.Contains(email, ".") {
			c.Email = email
		}
	}

	var digits strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if n := digits.Len(); n >= minPhoneDigits && n <= maxPhoneDigits {
		c.Phone = "+" + digits.String()
	}

	return c
}

func (c Contact) IsEmpty() bool {
	return c.Email == "" && c.Phone == ""
}

// Key identifies the contact for verification codes. Email wins over phone.
func (c Contact) Key() string {
	if c.Email != "" {
		return "email:" + c.Email
	}
	if c.Phone != "" {
		return "phone:" + c.Phone
	}
	return ""
}

func (c Contact) String() string {
	if c.Email != "" {
		return maskEmail(c.Email)
	}
	return maskPhone(c.Phone)
}

// PlaceholderContact synthesizes a contact for registrations that supplied nothing usable.
func PlaceholderContact(conversationID string) Contact {
	return Contact{Email: fmt.Sprintf("pending+%s@%s", strings.ToLower(conversationID), PlaceholderEmailDomain)}
}

func (c Contact) IsPlaceholder() bool {
	return strings.HasSuffix(c.Email, "@"+PlaceholderEmailDomain)
}

func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 1 {
		return "***" + email[max(at, 0):]
	}
	return email[:1] + "***" + email[at:]
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}

// VerificationCode is a one-time code proving ownership of a contact.
type VerificationCode struct {
	ContactKey  string    `json:"contact_key"`
	CodeHash    string    `json:"code_hash"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Verified    bool      `json:"verified"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (v *VerificationCode) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// Matches compares a submitted code against the stored hash.
func (v *VerificationCode) Matches(code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(v.CodeHash), []byte(code)) == nil
}

// NewVerificationCode hashes code and starts its expiry clock.
func NewVerificationCode(contact Contact, userID, code string, now time.Time) (*VerificationCode, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash verification code: %w", err)
	}
	return &VerificationCode{
		ContactKey:  contact.Key(),
		CodeHash:    string(hash),
		MaxAttempts: DefaultMaxVerifyAttempts,
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(VerificationCodeTTL),
	}, nil
}

type ResolutionOutcome string

const (
	ResolutionConnectedExisting  ResolutionOutcome = "connected_existing"
	ResolutionNeedsVerification  ResolutionOutcome = "needs_verification"
	ResolutionCreatedProvisional ResolutionOutcome = "created_provisional"
)

// Resolution is the result of resolving a contact to a user.
type Resolution struct {
	Outcome   ResolutionOutcome `json:"outcome"`
	User      *User             `json:"user"`
	Contact   Contact           `json:"contact"`
	CodeSent  bool              `json:"code_sent"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

// Linked reports whether the conversation is already tied to the user.
func (r *Resolution) Linked() bool {
	return r.Outcome == ResolutionConnectedExisting
}
