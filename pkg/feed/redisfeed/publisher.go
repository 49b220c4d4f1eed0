package redisfeed

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// Publisher announces alert changes on a Redis channel
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Publish encodes ev and publishes it
func (p *Publisher) Publish(ctx context.Context, ev gateway.ChangeEvent) error {
	payload, err := gateway.EncodeChangeEvent(ev)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s %s: %w: %w", ev.Op, ev.ID, gateway.ErrTransient, err)
	}
	return nil
}

// PublishingStore is an AlertStore that announces every successful write.
// A failed announcement is logged; the write itself has already happened.
type PublishingStore struct {
	gateway.AlertStore
	publisher *Publisher
	logger    *zap.Logger
}

func NewPublishingStore(store gateway.AlertStore, publisher *Publisher, logger *zap.Logger) *PublishingStore {
	return &PublishingStore{AlertStore: store, publisher: publisher, logger: logger}
}

func (s *PublishingStore) CreateAlert(ctx context.Context, author model.Identity, fields model.AlertFields) (model.Alert, error) {
	alert, err := s.AlertStore.CreateAlert(ctx, author, fields)
	if err != nil {
		return model.Alert{}, err
	}
	s.announce(ctx, gateway.InsertEvent(alert))
	return alert, nil
}

func (s *PublishingStore) DeleteAlert(ctx context.Context, id string, acting model.Identity) error {
	if err := s.AlertStore.DeleteAlert(ctx, id, acting); err != nil {
		return err
	}
	s.announce(ctx, gateway.DeleteEvent(id))
	return nil
}

func (s *PublishingStore) announce(ctx context.Context, ev gateway.ChangeEvent) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to announce alert change", zap.String("op", string(ev.Op)), zap.String("id", ev.ID), zap.Error(err))
	}
}
