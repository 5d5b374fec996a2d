package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ideaforge/internal/domain"
)

// Bus fans a notification out to external consumers. Delivery is best
// effort; the notifications table remains the durable record.
type Bus interface {
	Publish(ctx context.Context, n domain.Notification) error
	Close() error
}

// RedisBus publishes notifications on a Redis pub/sub channel so web
// frontends can push them live.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus connects to Redis from a URL (redis://host:port/db) and
// verifies the connection before returning.
func NewRedisBus(redisURL, channel string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if channel == "" {
		channel = "ideaforge:notifications"
	}
	return &RedisBus{client: client, channel: channel}, nil
}

// NewRedisBusWithClient wraps an existing client; used in tests.
func NewRedisBusWithClient(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = "ideaforge:notifications"
	}
	return &RedisBus{client: client, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, n domain.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
