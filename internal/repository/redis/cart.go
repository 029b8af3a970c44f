package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/repository"
	"github.com/utafrali/roastery/pkg/logger"
)

const cartKeyPrefix = "cart:"

// CartStore implements repository.CartStore using Redis. Each cart is one
// JSON array under cart:{owner}, refreshed to the configured TTL on save.
type CartStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ repository.CartStore = (*CartStore)(nil)

// NewCartStore creates a new Redis-backed cart store.
func NewCartStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *CartStore {
	return &CartStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Load returns the stored items. A missing key or undecodable value yields
// an empty cart.
func (s *CartStore) Load(ctx context.Context, owner string) ([]domain.CartItem, error) {
	data, err := s.client.Get(ctx, cartKeyPrefix+owner).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []domain.CartItem{}, nil
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var items []domain.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		logger.WithContext(ctx, s.logger).WarnContext(ctx, "discarding corrupt cart",
			slog.String("owner", owner),
			slog.String("error", err.Error()),
		)
		return []domain.CartItem{}, nil
	}
	if items == nil {
		items = []domain.CartItem{}
	}
	return items, nil
}

// Save replaces the stored items. An empty list deletes the key.
func (s *CartStore) Save(ctx context.Context, owner string, items []domain.CartItem) error {
	key := cartKeyPrefix + owner

	if len(items) == 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis del cart: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}
