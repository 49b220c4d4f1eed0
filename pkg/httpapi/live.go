package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/core/alertsync"
	"github.com/jakechorley/donornet/pkg/core/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// liveCommand is a client message on the live alert socket
type liveCommand struct {
	Type      string `json:"type"` // "submit" or "delete"
	ID        string `json:"id,omitempty"`
	BloodType string `json:"bloodType,omitempty"`
	Location  string `json:"location,omitempty"`
	Message   string `json:"message,omitempty"`
}

// liveMessage acknowledges or rejects a client command
type liveMessage struct {
	Type  string `json:"type"` // "ack" or "error"
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// snapshotMessage carries the whole alert list after a change
type snapshotMessage struct {
	Type   string      `json:"type"` // always "snapshot"
	State  string      `json:"state"`
	Alerts []alertView `json:"alerts"`
	Error  string      `json:"error,omitempty"`
}

// liveAlerts serves one alert screen. The connection owns a synchronizer for
// its whole lifetime and receives a snapshot after every change.
func (s *Server) liveAlerts(c *gin.Context) {
	d := access.CheckAccess(c.Request.Context(), s.gateway(), s.logger)
	if !d.Allowed {
		deny(c, d)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	logger := s.logger.With(zap.String("identity", string(d.Identity)))
	logger.Info("Live alert screen opened")

	screen := alertsync.New(s.sessions, s.store, s.feed, logger)
	defer screen.Deactivate()

	snapshots := make(chan []model.Alert, 1)
	replies := make(chan liveMessage, 8)
	screen.OnChange(func(alerts []model.Alert) { offerLatest(snapshots, alerts) })

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		s.writeLive(ctx, conn, screen, d.Identity, snapshots, replies)
	}()

	if err := screen.Activate(ctx); err != nil {
		reply(ctx, replies, liveMessage{Type: "error", Error: err.Error()})
	}

	s.readLive(ctx, conn, screen, replies)

	cancel()
	<-writerDone
	logger.Info("Live alert screen closed")
}

// offerLatest replaces any undelivered snapshot with alerts. Listener calls
// are serialized, so there is a single producer.
func offerLatest(ch chan []model.Alert, alerts []model.Alert) {
	select {
	case ch <- alerts:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- alerts:
	default:
	}
}

func reply(ctx context.Context, replies chan<- liveMessage, msg liveMessage) {
	select {
	case replies <- msg:
	case <-ctx.Done():
	}
}

// readLive handles client commands until the connection drops
func (s *Server) readLive(ctx context.Context, conn *websocket.Conn, screen *alertsync.Synchronizer, replies chan<- liveMessage) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Live alert socket read failed", zap.Error(err))
			}
			return
		}

		var cmd liveCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply(ctx, replies, liveMessage{Type: "error", Error: "malformed command"})
			continue
		}

		switch cmd.Type {
		case "submit":
			alert, err := screen.Submit(ctx, model.AlertFields{BloodType: cmd.BloodType, Location: cmd.Location, Message: cmd.Message})
			if err != nil {
				reply(ctx, replies, liveMessage{Type: "error", Error: err.Error()})
				continue
			}
			reply(ctx, replies, liveMessage{Type: "ack", ID: alert.ID})
		case "delete":
			if err := screen.Delete(ctx, cmd.ID); err != nil {
				reply(ctx, replies, liveMessage{Type: "error", ID: cmd.ID, Error: err.Error()})
				continue
			}
			reply(ctx, replies, liveMessage{Type: "ack", ID: cmd.ID})
		default:
			reply(ctx, replies, liveMessage{Type: "error", Error: "unknown command " + cmd.Type})
		}
	}
}

// writeLive is the only goroutine that writes to conn
func (s *Server) writeLive(
	ctx context.Context,
	conn *websocket.Conn,
	screen *alertsync.Synchronizer,
	viewer model.Identity,
	snapshots <-chan []model.Alert,
	replies <-chan liveMessage,
) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(msg any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			s.logger.Debug("Live alert socket write failed", zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case alerts := <-snapshots:
			msg := snapshotMessage{Type: "snapshot", State: screen.State().String(), Alerts: alertViews(alerts, viewer)}
			if err := screen.Err(); err != nil {
				msg.Error = err.Error()
			}
			if !write(msg) {
				return
			}
		case msg := <-replies:
			if !write(msg) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
