package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/gateway"
)

// alertLoader fetches the row behind an insert notification
type alertLoader interface {
	GetAlert(ctx context.Context, id string) (model.Alert, error)
}

// Feed delivers alert changes published by the alerts trigger via LISTEN/NOTIFY.
// Each subscription holds one pooled connection for its lifetime.
type Feed struct {
	pool    *pgxpool.Pool
	alerts  alertLoader
	channel string
	logger  *zap.Logger
}

// NewFeed creates a change feed over the database's alert trigger
func (d *DB) NewFeed(logger *zap.Logger) *Feed {
	return &Feed{pool: d.pool, alerts: d, channel: AlertChangesChannel, logger: logger}
}

// SubscribeToAlertChanges starts listening and dispatches events until the
// subscription is closed or ctx ends
func (f *Feed) SubscribeToAlertChanges(ctx context.Context, handlers gateway.AlertHandlers) (gateway.Subscription, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listener connection: %w", classify(err))
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on %s: %w", f.channel, classify(err))
	}

	listenCtx, cancel := context.WithCancel(ctx)
	sub := &listenSubscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer f.release(conn)

		for {
			n, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					f.logger.Warn("Alert listener stopped", zap.Error(err))
					handlers.Fail(classify(err))
				}
				return
			}

			ev, ok, err := f.resolve(listenCtx, n.Payload)
			if err != nil {
				if listenCtx.Err() != nil {
					return
				}
				f.logger.Warn("Dropping alert notification", zap.Error(err))
				continue
			}
			if ok {
				handlers.Dispatch(ev)
			}
		}
	}()

	f.logger.Debug("Listening for alert changes", zap.String("channel", f.channel))
	return sub, nil
}

// resolve turns a notification payload into a change event. Inserts carry
// only the id, so the row is loaded here. ok is false when the alert was
// deleted before it could be loaded; its delete notification follows.
func (f *Feed) resolve(ctx context.Context, payload string) (ev gateway.ChangeEvent, ok bool, err error) {
	var n struct {
		Op     string          `json:"op"`
		ID     string          `json:"id"`
		Record json.RawMessage `json:"record"`
	}
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return gateway.ChangeEvent{}, false, fmt.Errorf("failed to parse alert notification: %w", err)
	}

	if gateway.ChangeOp(strings.ToUpper(n.Op)) != gateway.OpInsert || len(n.Record) > 0 {
		ev, err := gateway.DecodeChangeEvent([]byte(payload))
		return ev, err == nil, err
	}

	if strings.TrimSpace(n.ID) == "" {
		return gateway.ChangeEvent{}, false, fmt.Errorf("insert notification has no id")
	}
	a, err := f.alerts.GetAlert(ctx, n.ID)
	if errors.Is(err, gateway.ErrNotFound) {
		f.logger.Debug("Inserted alert already gone", zap.String("id", n.ID))
		return gateway.ChangeEvent{}, false, nil
	}
	if err != nil {
		return gateway.ChangeEvent{}, false, fmt.Errorf("failed to load inserted alert: %w", err)
	}
	return gateway.InsertEvent(a), true, nil
}

// release returns the listener connection to the pool, first clearing its
// LISTEN state. A connection interrupted mid-wait is closed by pgx and the
// pool discards it.
func (f *Feed) release(conn *pgxpool.Conn) {
	if !conn.Conn().IsClosed() {
		if _, err := conn.Exec(context.Background(), "UNLISTEN *"); err != nil && !errors.Is(err, context.Canceled) {
			f.logger.Debug("Failed to unlisten", zap.Error(err))
		}
	}
	conn.Release()
}

type listenSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops the listener and waits for it to hand its connection back
func (s *listenSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
