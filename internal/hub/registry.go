package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teacurran/planning-poker/internal/bus"
)

// defaultLinger is how long an empty hub keeps its subscription alive
// before being released; it absorbs page reloads and brief reconnects.
const defaultLinger = 30 * time.Second

// Registry maps RoomId to the node-local RoomHub. Lookup-or-create is
// atomic: competing creators observe the same hub. The registry is strictly
// per-process.
type Registry struct {
	mu     sync.Mutex
	hubs   map[string]*RoomHub
	bus    bus.Bus
	linger time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry creates an empty registry over the given bus.
func NewRegistry(b bus.Bus) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		hubs:   make(map[string]*RoomHub),
		bus:    b,
		linger: defaultLinger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// GetOrCreate returns the hub for the room, creating and starting it (bus
// subscription included) on first use.
func (r *Registry) GetOrCreate(roomID string) (*RoomHub, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.hubs[roomID]; ok {
		return h, nil
	}

	h := newRoomHub(roomID, r.releaseHub, r.linger)
	if err := h.start(r.ctx, r.bus); err != nil {
		return nil, err
	}
	r.hubs[roomID] = h
	return h, nil
}

// Get returns the hub for the room if one is active on this node.
func (r *Registry) Get(roomID string) (*RoomHub, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[roomID]
	return h, ok
}

// Len returns the number of active hubs on this node.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hubs)
}

// releaseHub drops a hub after its linger period. A hub that was replaced
// or re-fetched concurrently is only removed if it is still the registered
// instance.
func (r *Registry) releaseHub(h *RoomHub) {
	r.mu.Lock()
	if current, ok := r.hubs[h.roomID]; ok && current == h {
		delete(r.hubs, h.roomID)
	}
	r.mu.Unlock()
	h.stop()
	slog.Debug("registry: hub released", "roomId", h.roomID)
}

// Shutdown stops every hub and the shared subscription context.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	hubs := make([]*RoomHub, 0, len(r.hubs))
	for _, h := range r.hubs {
		hubs = append(hubs, h)
	}
	r.hubs = make(map[string]*RoomHub)
	r.mu.Unlock()

	for _, h := range hubs {
		h.stop()
	}
	r.cancel()
}
