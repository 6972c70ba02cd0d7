package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teacurran/planning-poker/internal/models"
	"github.com/teacurran/planning-poker/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 20 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 8192

	// sendQueueSize bounds the outbound queue per connection. A full queue
	// means the consumer cannot keep up and the connection is closed with
	// SLOW_CONSUMER instead of blocking the hub.
	sendQueueSize = 64
)

// Client represents one persistent connection. Identity fields are populated
// by the gateway after a successful room.join.
type Client struct {
	ID            string
	RoomID        string
	ParticipantID uuid.UUID
	DisplayName   string
	Role          models.Role

	Conn *websocket.Conn
	Send chan []byte

	pingInterval time.Duration
	pongDeadline time.Duration

	lastPong  atomic.Int64 // unix nanos of last heartbeat.pong
	closeOnce sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	c := &Client{
		ID:           uuid.New().String(),
		Conn:         conn,
		Send:         make(chan []byte, sendQueueSize),
		pingInterval: pingPeriod,
		pongDeadline: pongWait,
	}
	c.lastPong.Store(time.Now().UnixNano())
	return c
}

// Joined reports whether the connection completed room.join.
func (c *Client) Joined() bool {
	return c.ParticipantID != uuid.Nil
}

// RecordPong notes a heartbeat.pong from the client.
func (c *Client) RecordPong() {
	c.lastPong.Store(time.Now().UnixNano())
}

// heartbeatExpired reports whether the client missed the pong deadline.
func (c *Client) heartbeatExpired() bool {
	last := time.Unix(0, c.lastPong.Load())
	return time.Since(last) > c.pongDeadline
}

// Enqueue appends an encoded frame to the outbound queue. Returns false when
// the queue is full; the caller is expected to close the connection.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// SendFrame encodes and enqueues a frame, best effort.
func (c *Client) SendFrame(f protocol.Frame) bool {
	return c.Enqueue(f.Encode())
}

// CloseWithReason sends a close control frame carrying the reason symbol and
// tears the connection down. Safe to call more than once and concurrently
// with the write pump (WriteControl may interleave with data writes);
// pending outbound sends are abandoned.
func (c *Client) CloseWithReason(reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
		_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.Conn.Close()
	})
}

// ReadPump pumps inbound messages to the handler until the connection drops.
// The handler runs on the read goroutine, so per-connection inbound order is
// preserved.
func (c *Client) ReadPump(handler func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)

	for {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.pongDeadline + c.pingInterval))
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Debug("ws: read error", "clientId", c.ID, "error", err)
			}
			return
		}
		handler(c, data)
	}
}

// WritePump drains the outbound queue onto the wire, emits heartbeat pings
// every pingPeriod, and enforces the pong deadline.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	ping := protocol.NewFrame(protocol.TypeHeartbeatPing, "", nil).Encode()

	for {
		select {
		case data, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if c.heartbeatExpired() {
				slog.Debug("ws: heartbeat timeout", "clientId", c.ID)
				c.CloseWithReason(protocol.CloseHeartbeatTimeout)
				return
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		}
	}
}
