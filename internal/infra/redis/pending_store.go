package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"rvl-week-service/internal/domain"
)

// PendingStore keeps staged deep-link unlocks as JSON strings that expire on their own.
type PendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPendingStore(client *redis.Client, ttl time.Duration) *PendingStore {
	return &PendingStore{client: client, ttl: ttl}
}

func (s *PendingStore) Stage(ctx context.Context, p domain.PendingUnlock) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending unlock: %w", err)
	}
	return s.client.Set(ctx, s.key(p.ID), raw, s.ttl).Err()
}

func (s *PendingStore) Get(ctx context.Context, id string) (domain.PendingUnlock, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PendingUnlock{}, domain.ErrPendingNotFound
	}
	if err != nil {
		return domain.PendingUnlock{}, fmt.Errorf("get pending unlock: %w", err)
	}
	var p domain.PendingUnlock
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.PendingUnlock{}, fmt.Errorf("decode pending unlock: %w", err)
	}
	return p, nil
}

func (s *PendingStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *PendingStore) key(id string) string {
	return "unlock:pending:" + id
}
