package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-sync/internal/logger"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 4096
)

// Client is one authenticated websocket connection.  Outbound frames go
// through a bounded queue drained by WritePump; when the queue is full the
// frame is dropped rather than stalling the sender.
type Client struct {
	holder model.Holder
	conn   *websocket.Conn
	send   chan Message

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps conn for the verified user.  buffer bounds the outbound
// queue.
func NewClient(conn *websocket.Conn, userID uint64, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		holder: model.Holder{UserID: userID, ConnID: uuid.NewString()},
		conn:   conn,
		send:   make(chan Message, buffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.holder.ConnID }

// Holder is the identity recorded on the seat locks this connection takes.
func (c *Client) Holder() model.Holder { return c.holder }

func (c *Client) Send(msg Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		logger.Debug("realtime: outbound queue full, frame dropped",
			zap.String("conn_id", c.holder.ConnID), zap.String("event", msg.Event))
		return false
	}
}

// Close stops the write pump, which then closes the socket.  Safe to call
// more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ReadPump decodes inbound frames and hands them to handle until the
// connection fails or ctx ends.  Undecodable frames are answered with an
// error event and otherwise ignored.
func (c *Client) ReadPump(ctx context.Context, handle func(context.Context, Message)) error {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Info("realtime: connection closed unexpectedly",
					zap.String("conn_id", c.holder.ConnID), zap.Error(err))
			}
			return err
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			c.Send(ErrorMessage("", "malformed frame"))
			continue
		}
		handle(ctx, msg)
	}
}

// WritePump drains the outbound queue and keeps the connection alive with
// pings.  It owns all writes to the socket and closes it on return.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					logger.Debug("realtime: write failed", zap.String("conn_id", c.holder.ConnID), zap.Error(err))
				}
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
