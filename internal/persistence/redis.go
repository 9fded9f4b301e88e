package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"roleplay-chat/core/internal/models"
	apperrors "roleplay-chat/core/pkg/errors"
)

// RedisSlot persists the store state as a single JSON value under one key.
type RedisSlot struct {
	client *redis.Client
	key    string
}

// NewRedisSlot creates a Redis-backed slot.
func NewRedisSlot(addr, password string, db int, key string) *RedisSlot {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisSlot{client: client, key: key}
}

// Ping verifies connectivity before the store starts writing through.
func (s *RedisSlot) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistence, "redis unreachable")
	}
	return nil
}

func (s *RedisSlot) Load(ctx context.Context) (*models.StoreState, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.CodePersistence, "failed to read state from redis")
	}

	var state models.StoreState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodePersistence, "stored state is corrupt")
	}
	return &state, nil
}

func (s *RedisSlot) Save(ctx context.Context, state *models.StoreState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodePersistence, "failed to encode state")
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		// Redis reports maxmemory rejection with an OOM prefix.
		if strings.Contains(err.Error(), "OOM") {
			return apperrors.Wrap(err, apperrors.CodeQuotaExceeded, "redis memory quota exceeded")
		}
		return apperrors.Wrap(err, apperrors.CodePersistence, "failed to write state to redis")
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisSlot) Close() error {
	return s.client.Close()
}
