package basket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/storefront-labs/fulfillment/internal/domain"
)

const keyPrefix = "basket:"

// Store keeps baskets as JSON blobs in Redis. The basket service is the only
// writer; the order and notification services never touch this store.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Basket, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get basket %s: %w", id, err)
	}

	var b domain.Basket
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode basket %s: %w", id, err)
	}

	return &b, nil
}

func (s *Store) Save(ctx context.Context, b *domain.Basket) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode basket %s: %w", b.ID, err)
	}

	if err := s.client.Set(ctx, keyPrefix+b.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("save basket %s: %w", b.ID, err)
	}

	return nil
}

// Delete removes the basket. Deleting a basket that is already gone is a
// success; a redelivered deletion command must not look like a failure.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete basket %s: %w", id, err)
	}
	return nil
}
