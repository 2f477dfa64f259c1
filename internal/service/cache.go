package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// draftTTL bounds how long per-job accepted-slot markers and shopping
// request states live in Redis. Jobs finish well inside a day.
const draftTTL = 24 * time.Hour

// RedisDraftCache records accepted slots per job in Redis so a resumed
// job skips work that already landed.
type RedisDraftCache struct {
	redis *redis.Client
}

// NewRedisDraftCache creates a new RedisDraftCache instance.
func NewRedisDraftCache(client *redis.Client) *RedisDraftCache {
	return &RedisDraftCache{redis: client}
}

func draftKey(jobID uuid.UUID, slotKey string) string {
	return fmt.Sprintf("menu:draft:%s:%s", jobID, slotKey)
}

func (c *RedisDraftCache) MarkAccepted(ctx context.Context, jobID uuid.UUID, slotKey string) error {
	if err := c.redis.Set(ctx, draftKey(jobID, slotKey), "1", draftTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark slot accepted: %w", err)
	}
	return nil
}

func (c *RedisDraftCache) IsAccepted(ctx context.Context, jobID uuid.UUID, slotKey string) (bool, error) {
	_, err := c.redis.Get(ctx, draftKey(jobID, slotKey)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check slot acceptance: %w", err)
	}
	return true, nil
}

// ShoppingRequestState is the pollable state of a shopping-list
// regeneration request.
type ShoppingRequestState struct {
	ID           uuid.UUID `json:"id"`
	PlanID       uuid.UUID `json:"plan_id"`
	Status       string    `json:"status"`
	ItemCount    int       `json:"item_count"`
	ServingCount int       `json:"serving_count"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RedisShoppingRequestStore keeps regeneration request state in Redis
// under shopping:request:<id>.
type RedisShoppingRequestStore struct {
	redis *redis.Client
}

// NewRedisShoppingRequestStore creates a new RedisShoppingRequestStore
// instance.
func NewRedisShoppingRequestStore(client *redis.Client) *RedisShoppingRequestStore {
	return &RedisShoppingRequestStore{redis: client}
}

func shoppingRequestKey(id uuid.UUID) string {
	return fmt.Sprintf("shopping:request:%s", id)
}

func (s *RedisShoppingRequestStore) Save(ctx context.Context, state *ShoppingRequestState) error {
	state.UpdatedAt = time.Now()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal shopping request state: %w", err)
	}
	if err := s.redis.Set(ctx, shoppingRequestKey(state.ID), data, draftTTL).Err(); err != nil {
		return fmt.Errorf("failed to save shopping request state: %w", err)
	}
	return nil
}

func (s *RedisShoppingRequestStore) Get(ctx context.Context, id uuid.UUID) (*ShoppingRequestState, error) {
	data, err := s.redis.Get(ctx, shoppingRequestKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrShoppingRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shopping request state: %w", err)
	}

	var state ShoppingRequestState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shopping request state: %w", err)
	}
	return &state, nil
}
