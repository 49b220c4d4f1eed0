// Package redisfeed carries alert change events over Redis pub/sub.
// Writers wrap their AlertStore in a PublishingStore; readers subscribe through Feed.
package redisfeed

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/internal/config"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// NewClient creates a Redis client from the feed configuration
func NewClient(cfg config.FeedConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// Ping checks the connection
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %w", gateway.ErrTransient, err)
	}
	return nil
}

// Feed subscribes to alert changes on one Redis channel
type Feed struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func New(client *redis.Client, channel string, logger *zap.Logger) *Feed {
	return &Feed{client: client, channel: channel, logger: logger}
}

// SubscribeToAlertChanges returns once Redis has confirmed the subscription
func (f *Feed) SubscribeToAlertChanges(ctx context.Context, handlers gateway.AlertHandlers) (gateway.Subscription, error) {
	pubsub := f.client.Subscribe(ctx, f.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w: %w", f.channel, gateway.ErrTransient, err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{pubsub: pubsub, cancel: cancel, done: make(chan struct{})}
	messages := pubsub.Channel()

	go func() {
		defer close(sub.done)
		for {
			select {
			case <-listenCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				ev, err := gateway.DecodeChangeEvent([]byte(msg.Payload))
				if err != nil {
					f.logger.Warn("Dropping malformed alert message", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handlers.Dispatch(ev)
			}
		}
	}()

	f.logger.Debug("Subscribed to alert changes", zap.String("channel", f.channel))
	return sub, nil
}

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Close unsubscribes and waits for the delivery goroutine to stop
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
		<-s.done
	})
	return s.err
}
