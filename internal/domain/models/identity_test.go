package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContact(t *testing.T) {
	tests := []struct {
		name  string
		email string
		phone string
		want  Contact
	}{
		{"email lowercased", "  Maria@Example.COM ", "", Contact{Email: "maria@example.com"}},
		{"phone digits only", "", "+55 (11) 98765-4321", Contact{Phone: "+5511987654321"}},
		{"both", "joao@example.com", "11 98765 4321", Contact{Email: "joao@example.com", Phone: "+11987654321"}},
		{"invalid email dropped", "not-an-email", "", Contact{}},
		{"display name rejected", "Maria <maria@example.com>", "", Contact{}},
		{"short phone dropped", "", "1234", Contact{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeContact(tt.email, tt.phone))
		})
	}
}

func TestContactKey(t *testing.T) {
	assert.Equal(t, "email:a@b.com", Contact{Email: "a@b.com", Phone: "+5511999999999"}.Key())
	assert.Equal(t, "phone:+5511999999999", Contact{Phone: "+5511999999999"}.Key())
	assert.Equal(t, "", Contact{}.Key())
}

func TestContactStringMasks(t *testing.T) {
	assert.Equal(t, "m***@example.com", Contact{Email: "maria@example.com"}.String())
	assert.Equal(t, "***4321", Contact{Phone: "+5511987654321"}.String())
}

func TestPlaceholderContact(t *testing.T) {
	c := PlaceholderContact("Conv_ABC")
	assert.Equal(t, "pending+conv_abc@intake.invalid", c.Email)
	assert.True(t, c.IsPlaceholder())
	assert.False(t, Contact{Email: "maria@example.com"}.IsPlaceholder())
}

func TestVerificationCodeExpiry(t *testing.T) {
	now := time.Now()
	code := &VerificationCode{ExpiresAt: now.Add(VerificationCodeTTL)}
	assert.False(t, code.IsExpired(now))
	assert.True(t, code.IsExpired(now.Add(VerificationCodeTTL)))
}

func TestUserActivate(t *testing.T) {
	u := NewProvisionalUser("user_1", "Maria", Contact{Email: "maria@example.com"})
	assert.False(t, u.IsActive)
	u.Activate()
	assert.True(t, u.IsActive)
	assert.True(t, u.IsVerified)
}

func TestNewVerificationCodeMatches(t *testing.T) {
	now := time.Now().UTC()
	code, err := NewVerificationCode(Contact{Email: "maria@example.com"}, "cu_1", "123456", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, "email:maria@example.com", code.ContactKey)
	assert.NotEqual(t, "123456", code.CodeHash)
	assert.Equal(t, DefaultMaxVerifyAttempts, code.MaxAttempts)
	assert.Equal(t, now.Add(VerificationCodeTTL), code.ExpiresAt)
	assert.True(t, code.Matches("123456"))
	assert.False(t, code.Matches("654321"))
}
