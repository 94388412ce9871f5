// Package rediscache shares the last good signal snapshot per plant through
// Redis so several engine instances can bridge a failing feed.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/gridready/core/model"
	"github.com/kilianp07/gridready/core/signals"
)

// DefaultPrefix namespaces the snapshot keys.
const DefaultPrefix = "gridready:signals"

// Config describes the Redis connection.
type Config struct {
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"-"`
	Prefix   string        `json:"prefix"`
}

// Cache implements signals.Cache on top of Redis string keys.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.TTL, cfg.Prefix), nil
}

// NewWithClient wraps an existing client. A zero ttl keeps snapshots forever.
func NewWithClient(client *redis.Client, ttl time.Duration, prefix string) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{client: client, ttl: ttl, prefix: prefix}
}

func (c *Cache) key(plantID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, plantID)
}

func (c *Cache) Load(ctx context.Context, plantID string) (model.PlantSignals, bool, error) {
	data, err := c.client.Get(ctx, c.key(plantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.PlantSignals{}, false, nil
	}
	if err != nil {
		return model.PlantSignals{}, false, fmt.Errorf("failed to get signals from redis: %w", err)
	}
	var snap model.PlantSignals
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.PlantSignals{}, false, fmt.Errorf("failed to unmarshal signals: %w", err)
	}
	return snap, true, nil
}

func (c *Cache) Store(ctx context.Context, s model.PlantSignals) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}
	if err := c.client.Set(ctx, c.key(s.PlantID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set signals in redis: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *Cache) Close() error { return c.client.Close() }

var _ signals.Cache = (*Cache)(nil)
