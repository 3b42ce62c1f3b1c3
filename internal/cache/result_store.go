package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/config"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	resultKeyPrefix     = "forecast:result"
	resultScanBatchSize = 100
)

// RemoteStore is the shared second-level store behind the in-process cache.
type RemoteStore interface {
	Get(ctx context.Context, key Key) (*domain.PredictionResult, bool, error)
	Set(ctx context.Context, key Key, result *domain.PredictionResult) error
	InvalidateEntity(ctx context.Context, entityID string) error
	InvalidateAll(ctx context.Context) error
}

type redisResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

type noopResultStore struct{}

// NewRemoteStore returns a redis backed store, or a no-op store when the
// cache is disabled.
func NewRemoteStore(cfg config.CacheConfig) (RemoteStore, error) {
	if !cfg.Enabled {
		return &noopResultStore{}, nil
	}

	client, err := dialRedis(cfg)
	if err != nil {
		return nil, err
	}

	return &redisResultStore{
		client: client,
		ttl:    resultTTL(cfg),
	}, nil
}

// NewRedisResultStore wraps an existing client.
func NewRedisResultStore(client *redis.Client, ttl time.Duration) RemoteStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &redisResultStore{client: client, ttl: ttl}
}

func NewNoopRemoteStore() RemoteStore {
	return &noopResultStore{}
}

func (c *redisResultStore) Get(ctx context.Context, key Key) (*domain.PredictionResult, bool, error) {
	payload, err := c.client.Get(ctx, buildResultKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var result domain.PredictionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("decode prediction cache: %w", err)
	}

	return &result, true, nil
}

func (c *redisResultStore) Set(ctx context.Context, key Key, result *domain.PredictionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode prediction cache: %w", err)
	}

	if err := c.client.Set(ctx, buildResultKey(key), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisResultStore) InvalidateEntity(ctx context.Context, entityID string) error {
	return deleteKeysWithPrefix(ctx, c.client, entityPrefix(entityID), resultScanBatchSize)
}

func (c *redisResultStore) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, resultKeyPrefix+":", resultScanBatchSize)
}

func (n *noopResultStore) Get(ctx context.Context, key Key) (*domain.PredictionResult, bool, error) {
	return nil, false, nil
}

func (n *noopResultStore) Set(ctx context.Context, key Key, result *domain.PredictionResult) error {
	return nil
}

func (n *noopResultStore) InvalidateEntity(ctx context.Context, entityID string) error {
	return nil
}

func (n *noopResultStore) InvalidateAll(ctx context.Context) error {
	return nil
}

func entityPrefix(entityID string) string {
	return fmt.Sprintf("%s:%s:", resultKeyPrefix, entityID)
}

func buildResultKey(key Key) string {
	return fmt.Sprintf("%s%s:%s", entityPrefix(key.EntityID), key.Horizon, key.Fingerprint)
}
