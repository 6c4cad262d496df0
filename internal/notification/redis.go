package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// DefaultAlertChannel is the pub/sub channel alerts are published to
// when no channel is configured.
const DefaultAlertChannel = "trader:alerts"

// RedisConfig configures the Redis notifier.
type RedisConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Channel  string // pub/sub channel, DefaultAlertChannel when empty
}

// RedisNotifier publishes alerts as JSON to a Redis pub/sub channel so
// external consumers (dashboards, bots) can subscribe without coupling
// to this process.
type RedisNotifier struct {
	client  *goredis.Client
	channel string
}

// NewRedisNotifier creates a Redis notifier and pings the server.
func NewRedisNotifier(cfg RedisConfig) (*RedisNotifier, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = DefaultAlertChannel
	}
	log.Printf("[redis] connected to %s, publishing on %s", cfg.Addr, channel)
	return &RedisNotifier{client: client, channel: channel}, nil
}

func (r *RedisNotifier) Send(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("redis: marshal: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
