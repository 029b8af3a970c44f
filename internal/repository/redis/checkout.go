package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/roastery/internal/repository"
)

const checkoutKeyPrefix = "checkout:idem:"

// pendingMarker is stored while the first request holding a key is still
// running.
const pendingMarker = "pending"

// CheckoutDedupeStore implements repository.CheckoutDedupeStore with SET NX.
type CheckoutDedupeStore struct {
	client *redis.Client
}

var _ repository.CheckoutDedupeStore = (*CheckoutDedupeStore)(nil)

// NewCheckoutDedupeStore creates a Redis-backed dedupe store.
func NewCheckoutDedupeStore(client *redis.Client) *CheckoutDedupeStore {
	return &CheckoutDedupeStore{client: client}
}

// Reserve claims key for ttl. When the key is already held it returns false
// and the stored reservation, whose OrderID is empty while the first request
// is still in flight.
func (s *CheckoutDedupeStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, *repository.CheckoutReservation, error) {
	ok, err := s.client.SetNX(ctx, checkoutKeyPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return false, nil, fmt.Errorf("redis reserve checkout: %w", err)
	}
	if ok {
		return true, nil, nil
	}

	raw, err := s.client.Get(ctx, checkoutKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; treat as in flight.
			return false, &repository.CheckoutReservation{}, nil
		}
		return false, nil, fmt.Errorf("redis read checkout reservation: %w", err)
	}
	if raw == pendingMarker {
		return false, &repository.CheckoutReservation{}, nil
	}

	var res repository.CheckoutReservation
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return false, nil, fmt.Errorf("unmarshal checkout reservation: %w", err)
	}
	return false, &res, nil
}

// Complete stores the checkout result under key.
func (s *CheckoutDedupeStore) Complete(ctx context.Context, key string, res repository.CheckoutReservation, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal checkout reservation: %w", err)
	}
	if err := s.client.Set(ctx, checkoutKeyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis complete checkout: %w", err)
	}
	return nil
}

// Release deletes key.
func (s *CheckoutDedupeStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, checkoutKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis release checkout: %w", err)
	}
	return nil
}
