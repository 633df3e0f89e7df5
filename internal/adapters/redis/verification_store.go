package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/longregen/counsel/internal/domain"
	"github.com/longregen/counsel/internal/domain/models"
)

const verificationKeyPrefix = "counsel:verify:"

const (
	fieldCodeHash    = "code_hash"
	fieldAttempts    = "attempts"
	fieldMaxAttempts = "max_attempts"
	fieldVerified    = "verified"
	fieldUserID      = "user_id"
	fieldCreatedAt   = "created_at"
	fieldExpiresAt   = "expires_at"
)

// HINCRBY on a missing key would recreate it without a TTL, so both mutations
// only touch hashes that still exist.
var incrementAttemptsScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

var markVerifiedScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "verified", "1")
return 1
`)

// VerificationCodeStore keeps one pending code per contact key in a Redis hash
// that expires together with the code.
type VerificationCodeStore struct {
	client goredis.Cmdable
	now    func() time.Time
}

func NewVerificationCodeStore(client goredis.Cmdable) *VerificationCodeStore {
	return &VerificationCodeStore{client: client, now: time.Now}
}

func verificationKey(contactKey string) string {
	return verificationKeyPrefix + contactKey
}

// Save replaces any pending code for the contact.
func (s *VerificationCodeStore) Save(ctx context.Context, code *models.VerificationCode) error {
	if code.ContactKey == "" {
		return domain.NewDomainError(domain.ErrInvalidContact, "verification code without contact key")
	}

	ttl := code.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return domain.ErrVerificationExpired
	}

	key := verificationKey(code.ContactKey)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeVerificationCode(code))
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save verification code: %w", err)
	}
	return nil
}

func (s *VerificationCodeStore) Get(ctx context.Context, contactKey string) (*models.VerificationCode, error) {
	fields, err := s.client.HGetAll(ctx, verificationKey(contactKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load verification code: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrVerificationNotFound
	}

	code, err := decodeVerificationCode(contactKey, fields)
	if err != nil {
		return nil, err
	}
	if code.IsExpired(s.now()) {
		return nil, domain.ErrVerificationExpired
	}
	return code, nil
}

func (s *VerificationCodeStore) IncrementAttempts(ctx context.Context, contactKey string) (int, error) {
	n, err := incrementAttemptsScript.Run(ctx, s.client, []string{verificationKey(contactKey)}).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to increment verification attempts: %w", err)
	}
	if n < 0 {
		return 0, domain.ErrVerificationNotFound
	}
	return n - 1, nil
}

func (s *VerificationCodeStore) MarkVerified(ctx context.Context, contactKey string) error {
	n, err := markVerifiedScript.Run(ctx, s.client, []string{verificationKey(contactKey)}).Int()
	if err != nil {
		return fmt.Errorf("failed to mark verification code: %w", err)
	}
	if n == 0 {
		return domain.ErrVerificationNotFound
	}
	return nil
}

func encodeVerificationCode(code *models.VerificationCode) map[string]any {
	return map[string]any{
		fieldCodeHash:    code.CodeHash,
		fieldAttempts:    code.Attempts,
		fieldMaxAttempts: code.MaxAttempts,
		fieldVerified:    boolField(code.Verified),
		fieldUserID:      code.UserID,
		fieldCreatedAt:   code.CreatedAt.UnixMilli(),
		fieldExpiresAt:   code.ExpiresAt.UnixMilli(),
	}
}

func decodeVerificationCode(contactKey string, fields map[string]string) (*models.VerificationCode, error) {
	code := &models.VerificationCode{
		ContactKey: contactKey,
		CodeHash:   fields[fieldCodeHash],
		UserID:     fields[fieldUserID],
		Verified:   fields[fieldVerified] == "1",
	}

	attempts, err := intField(fields, fieldAttempts)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := intField(fields, fieldMaxAttempts)
	if err != nil {
		return nil, err
	}
	code.Attempts = int(attempts)
	code.MaxAttempts = int(maxAttempts)
	if code.MaxAttempts <= 0 {
		code.MaxAttempts = models.DefaultMaxVerifyAttempts
	}

	created, err := intField(fields, fieldCreatedAt)
	if err != nil {
		return nil, err
	}
	expires, err := intField(fields, fieldExpiresAt)
	if err != nil {
		return nil, err
	}
	code.CreatedAt = time.UnixMilli(created).UTC()
	code.ExpiresAt = time.UnixMilli(expires).UTC()

	if code.CodeHash == "" {
		return nil, errors.New("verification code record has no hash")
	}
	return code, nil
}

func intField(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("verification field %s: %w", name, err)
	}
	return n, nil
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
