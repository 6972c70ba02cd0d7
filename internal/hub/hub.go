// Package hub holds the per-process room actors. A RoomHub serializes every
// mutation for its room through a single ops goroutine, forwards bus events
// to locally attached connections, and never blocks on a slow client.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teacurran/planning-poker/internal/bus"
	"github.com/teacurran/planning-poker/internal/protocol"
)

// ErrHubClosed is returned when submitting work to a released hub.
var ErrHubClosed = errors.New("room hub closed")

// opsQueueSize bounds pending serialized operations per room.
const opsQueueSize = 128

// RoomHub is the in-memory single-writer actor for one room on this node.
// A room may have hubs on several nodes at once; the event bus keeps them
// coherent.
type RoomHub struct {
	roomID string

	attach chan *Client
	detach chan *Client
	ops    chan op

	clients map[*Client]bool
	nConns  atomic.Int32

	events <-chan bus.Event
	cancel context.CancelFunc
	closed chan struct{}

	// release is invoked once after the linger period with no attached
	// connections; the registry drops the hub and the subscription ends.
	release func(*RoomHub)
	linger  time.Duration
}

type op struct {
	fn   func()
	done chan struct{}
}

func newRoomHub(roomID string, release func(*RoomHub), linger time.Duration) *RoomHub {
	return &RoomHub{
		roomID:  roomID,
		attach:  make(chan *Client),
		detach:  make(chan *Client),
		ops:     make(chan op, opsQueueSize),
		clients: make(map[*Client]bool),
		closed:  make(chan struct{}),
		release: release,
		linger:  linger,
	}
}

// RoomID returns the room this hub serves.
func (h *RoomHub) RoomID() string {
	return h.roomID
}

// ConnCount returns the number of locally attached connections.
func (h *RoomHub) ConnCount() int {
	return int(h.nConns.Load())
}

// start opens the bus subscription and spawns the actor goroutines.
func (h *RoomHub) start(ctx context.Context, b bus.Bus) error {
	ctx, cancel := context.WithCancel(ctx)

	events, err := b.SubscribeRoom(ctx, h.roomID)
	if err != nil {
		cancel()
		return err
	}

	h.events = events
	h.cancel = cancel

	go h.run()
	go h.runOps()

	slog.Debug("hub: started", "roomId", h.roomID)
	return nil
}

// stop tears the hub down; attached clients are closed.
func (h *RoomHub) stop() {
	select {
	case <-h.closed:
		return
	default:
	}
	close(h.closed)
	h.cancel()
}

// Attach binds a joined connection to the hub.
func (h *RoomHub) Attach(c *Client) error {
	select {
	case h.attach <- c:
		return nil
	case <-h.closed:
		return ErrHubClosed
	}
}

// Detach removes a connection; the last detach arms the linger timer.
func (h *RoomHub) Detach(c *Client) {
	select {
	case h.detach <- c:
	case <-h.closed:
	}
}

// Do runs fn on the hub's single ops goroutine and waits for it to finish,
// bounded by ctx. All mutations for a room on this node are serialized here;
// fan-out is unaffected because it runs on the actor loop.
func (h *RoomHub) Do(ctx context.Context, fn func()) error {
	o := op{fn: fn, done: make(chan struct{})}
	select {
	case h.ops <- o:
	case <-h.closed:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *RoomHub) runOps() {
	for {
		select {
		case o := <-h.ops:
			o.fn()
			close(o.done)
		case <-h.closed:
			return
		}
	}
}

// run is the actor loop: membership changes and event fan-out only.
func (h *RoomHub) run() {
	var lingerTimer *time.Timer
	var lingerC <-chan time.Time

	stopLinger := func() {
		if lingerTimer != nil {
			lingerTimer.Stop()
			lingerTimer = nil
			lingerC = nil
		}
	}

	defer stopLinger()

	for {
		select {
		case c := <-h.attach:
			h.clients[c] = true
			h.nConns.Store(int32(len(h.clients)))
			stopLinger()
			slog.Debug("hub: attached", "roomId", h.roomID, "clientId", c.ID, "conns", len(h.clients))

		case c := <-h.detach:
			if h.clients[c] {
				delete(h.clients, c)
				h.nConns.Store(int32(len(h.clients)))
				slog.Debug("hub: detached", "roomId", h.roomID, "clientId", c.ID, "conns", len(h.clients))
			}
			if len(h.clients) == 0 && lingerTimer == nil {
				lingerTimer = time.NewTimer(h.linger)
				lingerC = lingerTimer.C
			}

		case <-lingerC:
			if len(h.clients) == 0 {
				slog.Debug("hub: linger expired, releasing", "roomId", h.roomID)
				h.release(h)
				return
			}
			stopLinger()

		case evt, ok := <-h.events:
			if !ok {
				// bus stream ended; drop the hub, clients reconnect and
				// re-read state from the store
				slog.Warn("hub: event stream closed", "roomId", h.roomID)
				for c := range h.clients {
					_ = c.Conn.Close()
				}
				h.release(h)
				return
			}
			h.fanOut(evt)

		case <-h.closed:
			return
		}
	}
}

// fanOut forwards one event to every attached connection whose role permits
// it, disconnecting clients that cannot keep up.
func (h *RoomHub) fanOut(evt bus.Event) {
	frame := protocol.Frame{Type: evt.Type, Payload: evt.Payload}
	data := frame.Encode()

	for c := range h.clients {
		if !roleMayReceive(c.Role, evt.Type) {
			continue
		}
		if !c.Enqueue(data) {
			slog.Warn("hub: send queue full, dropping client",
				"roomId", h.roomID, "clientId", c.ID)
			delete(h.clients, c)
			h.nConns.Store(int32(len(h.clients)))
			c.CloseWithReason(protocol.CloseSlowConsumer)
		}
	}
}
