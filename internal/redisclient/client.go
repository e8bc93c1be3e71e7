package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"unibuy/internal/models"

	"github.com/go-redis/redis/v8"
)

const cartViewTTL = 5 * time.Minute

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetCartView returns a cached materialized cart, or nil on a miss.
func (c *Client) GetCartView(ctx context.Context, userID int64) (*models.CartView, error) {
	raw, err := c.rdb.Get(ctx, cartKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var view models.CartView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return nil, fmt.Errorf("failed to decode cached cart: %w", err)
	}
	return &view, nil
}

// SetCartView caches a materialized cart with a TTL.
func (c *Client) SetCartView(ctx context.Context, userID int64, view *models.CartView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	return c.rdb.Set(ctx, cartKey(userID), raw, cartViewTTL).Err()
}

// InvalidateCart drops the cached cart after a mutation.
func (c *Client) InvalidateCart(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, cartKey(userID)).Err()
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
