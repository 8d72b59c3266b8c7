package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript deletes the stored hash when ARGV[1] matches it. A mismatch bumps
// the attempt counter and burns the secret once ARGV[2] attempts have failed.
var consumeScript = redis.NewScript(`local v = redis.call("get", KEYS[1])
if not v then
  return 0
end
if v == ARGV[1] then
  redis.call("del", KEYS[1], KEYS[2])
  return 1
end
local n = redis.call("incr", KEYS[2])
if n == 1 then
  local ttl = redis.call("pttl", KEYS[1])
  if ttl > 0 then
    redis.call("pexpire", KEYS[2], ttl)
  end
end
if n >= tonumber(ARGV[2]) then
  redis.call("del", KEYS[1], KEYS[2])
end
return 0`)

// SecretStore keeps hashed OTPs and reset tokens in Redis, one live secret per user
// and kind.
type SecretStore struct {
	R           *redis.Client
	Prefix      string
	MaxAttempts int
}

const (
	kindOTP   = "otp"
	kindReset = "reset"
)

func (s SecretStore) keys(kind, userID string) (string, string) {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "user:"
	}
	key := prefix + kind + ":" + userID
	return key, key + ":attempts"
}

func (s SecretStore) save(ctx context.Context, kind, userID, hash string, ttl time.Duration) error {
	if s.R == nil {
		return errors.New("user: redis client not configured")
	}
	key, attempts := s.keys(kind, userID)
	_, err := s.R.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, hash, ttl)
		p.Del(ctx, attempts)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	return nil
}

func (s SecretStore) consume(ctx context.Context, kind, userID, hash string) (bool, error) {
	if s.R == nil {
		return false, errors.New("user: redis client not configured")
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	key, attempts := s.keys(kind, userID)
	n, err := consumeScript.Run(ctx, s.R, []string{key, attempts}, hash, maxAttempts).Int()
	if err != nil {
		return false, fmt.Errorf("consume %s: %w", kind, err)
	}
	return n == 1, nil
}

func (s SecretStore) discard(ctx context.Context, kind, userID string) error {
	key, attempts := s.keys(kind, userID)
	return s.R.Del(ctx, key, attempts).Err()
}

// SaveOTP replaces the user's pending OTP hash.
func (s SecretStore) SaveOTP(ctx context.Context, userID, hash string, ttl time.Duration) error {
	return s.save(ctx, kindOTP, userID, hash, ttl)
}

// ConsumeOTP reports whether hash matches the pending OTP, deleting it on success.
func (s SecretStore) ConsumeOTP(ctx context.Context, userID, hash string) (bool, error) {
	return s.consume(ctx, kindOTP, userID, hash)
}

// DiscardOTP drops the pending OTP.
func (s SecretStore) DiscardOTP(ctx context.Context, userID string) error {
	return s.discard(ctx, kindOTP, userID)
}

// SaveResetToken replaces the user's pending reset token hash.
func (s SecretStore) SaveResetToken(ctx context.Context, userID, hash string, ttl time.Duration) error {
	return s.save(ctx, kindReset, userID, hash, ttl)
}

// ConsumeResetToken reports whether hash matches the pending reset token, deleting it on success.
func (s SecretStore) ConsumeResetToken(ctx context.Context, userID, hash string) (bool, error) {
	return s.consume(ctx, kindReset, userID, hash)
}
