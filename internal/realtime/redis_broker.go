package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/experiencehub/booking-engine/internal/config"
	"github.com/experiencehub/booking-engine/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBroker carries per-user topics over Redis Pub/Sub so every instance
// sees every notification
type RedisBroker struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisBroker connects to Redis and verifies the connection
func NewRedisBroker(cfg config.RedisConfig, logger *logrus.Logger) (*RedisBroker, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return &RedisBroker{client: client, logger: logger}, nil
}

// UserChannel is the Pub/Sub channel of one user
func UserChannel(userID uuid.UUID) string {
	return "notifications:user:" + userID.String()
}

// Publish sends the notification as JSON on the user's channel
func (b *RedisBroker) Publish(ctx context.Context, userID uuid.UUID, n *models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := b.client.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription on the user's channel
func (b *RedisBroker) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan models.Notification, func(), error) {
	pubsub := b.client.Subscribe(ctx, UserChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan models.Notification, subscriberBuffer)
	done := make(chan struct{})

	go func() {
		defer close(out)
		messages := pubsub.Channel()
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var n models.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					b.logger.WithError(err).WithField("channel", msg.Channel).Warn("Dropping malformed notification")
					continue
				}
				select {
				case out <- n:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}
	return out, cancel, nil
}

// Close closes the Redis client
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
