package hub

import (
	"sort"
	"sync"

	"github.com/fleetbeam/tracker-hub/internal/domain"
	"github.com/fleetbeam/tracker-hub/pkg/log"
)

// Hub is the connection registry and room router. Membership state is
// the only shared mutable data in the process: rooms maps a room key to
// its member set, memberships is the reverse index used to evict a
// connection from every room on disconnect. Both are guarded by mu.
// Fan-out is serialized through the broadcast channel so that, for any
// single connection, payloads are queued in the order they were
// submitted.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	rooms       map[domain.RoomKey]map[string]*Client
	memberships map[string]map[domain.RoomKey]struct{}

	broadcast chan *broadcast
	onEvict   func(*Client)
}

// broadcast is one fan-out request. With a single key it targets that
// room; with several keys and dedupe set it targets the union of the
// rooms, each member at most once.
type broadcast struct {
	Keys    []domain.RoomKey
	Payload []byte
	Exclude string // connection id to skip, "" for none
	Dedupe  bool
}

func NewHub() *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		rooms:       make(map[domain.RoomKey]map[string]*Client),
		memberships: make(map[string]map[domain.RoomKey]struct{}),
		broadcast:   make(chan *broadcast, 256),
	}
}

// OnEvict registers the callback invoked when a member is dropped for
// not keeping up, so the owner can run its full disconnect bookkeeping.
// Must be set before Run starts; without it eviction falls back to a
// bare Unregister.
func (h *Hub) OnEvict(fn func(*Client)) {
	h.onEvict = fn
}

// Run drains the broadcast queue. It must run in its own goroutine for
// the lifetime of the hub.
func (h *Hub) Run() {
	for msg := range h.broadcast {
		h.deliver(msg)
	}
}

// Register adds a connection to the registry. Rooms are joined
// separately.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.ID] = c
	h.memberships[c.ID] = make(map[domain.RoomKey]struct{})

	l := log.L()
	l.Debug().Str(log.FieldConnID, c.ID).Msg("connection registered")
}

// Unregister removes the connection from every room it joined and
// frees its record. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}

	for key := range h.memberships[c.ID] {
		if members, ok := h.rooms[key]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, key)
			}
		}
	}
	delete(h.memberships, c.ID)
	delete(h.clients, c.ID)
	c.closeSend()

	l := log.L()
	l.Debug().Str(log.FieldConnID, c.ID).Msg("connection unregistered")
}

// Join adds the connection to the room, creating it on first use.
// Joining a room twice has no additional effect.
func (h *Hub) Join(c *Client, key domain.RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}

	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[string]*Client)
	}
	h.rooms[key][c.ID] = c
	h.memberships[c.ID][key] = struct{}{}

	l := log.L()
	l.Info().Str(log.FieldConnID, c.ID).Str(log.FieldRoom, key.String()).Msg("connection joined room")
}

// Broadcast queues payload for every current member of the room except
// the excluded connection. Delivery to each member is independent and
// best-effort.
func (h *Hub) Broadcast(key domain.RoomKey, payload []byte, exclude string) {
	h.broadcast <- &broadcast{
		Keys:    []domain.RoomKey{key},
		Payload: payload,
		Exclude: exclude,
	}
}

// BroadcastToMany queues payload for the union of the rooms' members,
// delivering at most once to a connection that belongs to several of
// the targeted rooms.
func (h *Hub) BroadcastToMany(keys []domain.RoomKey, payload []byte, exclude string) {
	h.broadcast <- &broadcast{
		Keys:    keys,
		Payload: payload,
		Exclude: exclude,
		Dedupe:  true,
	}
}

func (h *Hub) deliver(msg *broadcast) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, key := range msg.Keys {
		members, ok := h.rooms[key]
		if !ok {
			continue
		}
		for id, client := range members {
			if id == msg.Exclude {
				continue
			}
			if msg.Dedupe {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			select {
			case client.Send <- msg.Payload:
			default:
				// Member cannot keep up; drop it without stalling the rest.
				go h.evict(client)
			}
		}
	}
}

func (h *Hub) evict(c *Client) {
	if fn := h.onEvict; fn != nil {
		fn(c)
		return
	}
	h.Unregister(c)
}

// RoomCount returns the current member count of a room.
func (h *Hub) RoomCount(key domain.RoomKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[key])
}

// Rooms returns a snapshot of the rooms the connection has joined.
func (h *Hub) Rooms(c *Client) []domain.RoomKey {
	h.mu.RLock()
	defer h.mu.RUnlock()

	keys := make([]domain.RoomKey, 0, len(h.memberships[c.ID]))
	for key := range h.memberships[c.ID] {
		keys = append(keys, key)
	}
	return keys
}

// Stats is the liveness snapshot exposed by the ops surface.
type Stats struct {
	Connections int `json:"connections"`
	Drivers     int `json:"drivers"`
	Students    int `json:"students"`
	Admins      int `json:"admins"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return Stats{
		Connections: len(h.clients),
		Drivers:     len(h.rooms[domain.RoleRoom(domain.RoleDriver)]),
		Students:    len(h.rooms[domain.RoleRoom(domain.RoleStudent)]),
		Admins:      len(h.rooms[domain.RoleRoom(domain.RoleAdmin)]),
	}
}

// BusStat describes one active bus room.
type BusStat struct {
	BusID       string `json:"bus_id"`
	Subscribers int    `json:"subscribers"`
}

// ActiveBuses lists non-empty bus rooms, ordered by bus id.
func (h *Hub) ActiveBuses() []BusStat {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buses := make([]BusStat, 0)
	for key, members := range h.rooms {
		if key.IsBus() {
			buses = append(buses, BusStat{BusID: key.Name(), Subscribers: len(members)})
		}
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i].BusID < buses[j].BusID })
	return buses
}
