package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/roastery/internal/repository"
	apperrors "github.com/utafrali/roastery/pkg/errors"
)

const passwordResetKeyPrefix = "password_reset:"

// PasswordResetStore implements repository.PasswordResetStore. Keys hold the
// SHA-256 of the token, never the token itself.
type PasswordResetStore struct {
	client *redis.Client
}

var _ repository.PasswordResetStore = (*PasswordResetStore)(nil)

// NewPasswordResetStore creates a Redis-backed reset token store.
func NewPasswordResetStore(client *redis.Client) *PasswordResetStore {
	return &PasswordResetStore{client: client}
}

// Save stores token for userID with a ttl expiry.
func (s *PasswordResetStore) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, resetKey(token), userID, ttl).Err(); err != nil {
		return fmt.Errorf("redis save reset token: %w", err)
	}
	return nil
}

// Consume reads and deletes the token in one GETDEL, so two concurrent
// resets with the same token cannot both succeed.
func (s *PasswordResetStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, resetKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.NotFound("password reset", "token")
		}
		return "", fmt.Errorf("redis consume reset token: %w", err)
	}
	return userID, nil
}

func resetKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return passwordResetKeyPrefix + hex.EncodeToString(sum[:])
}
