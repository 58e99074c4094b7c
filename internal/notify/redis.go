package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "fresh-market:events"

// RedisPublisher publishes events to a redis channel so that every
// instance running a Relay delivers them to its own clients.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Relay forwards events from the redis channel to the hub until ctx is
// done. It returns once the subscription is confirmed and the forwarding
// goroutine has started; the returned channel is closed when it exits.
func Relay(ctx context.Context, client *redis.Client, channel string, hub *Hub, logger *zap.Logger) (<-chan struct{}, error) {
	if channel == "" {
		channel = DefaultChannel
	}

	pubsub := client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev struct {
					Room string `json:"room"`
				}
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Room == "" {
					logger.Warn("Discarding malformed event", zap.String("payload", msg.Payload))
					continue
				}
				hub.deliver(ev.Room, []byte(msg.Payload))
			}
		}
	}()

	logger.Info("Event relay subscribed", zap.String("channel", channel))
	return done, nil
}
