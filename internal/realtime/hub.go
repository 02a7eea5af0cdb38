// Package realtime pushes server events to websocket clients grouped in rooms.
package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/unilib/apiserver/internal/log"
	"github.com/unilib/apiserver/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
	// maxRooms caps the rooms one connection may hold, its own user room included.
	maxRooms = 64
)

func UserRoom(userID int) string    { return fmt.Sprintf("user:%d", userID) }
func PostRoom(postID int) string    { return fmt.Sprintf("post:%d", postID) }
func ChannelRoom(chanID int) string { return fmt.Sprintf("channel:%d", chanID) }

// Event is the frame written to clients.
type Event struct {
	Event   string `json:"event"`
	Room    string `json:"room"`
	Payload any    `json:"payload"`
}

type command struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

type client struct {
	userID int
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]struct{}
}

// Hub tracks connected clients and the rooms they joined.
// Delivery is best-effort: a client whose buffer is full misses the event.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	clients  map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*client]struct{}),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log.WithComponent("realtime"),
	}
}

// ToRoom sends event to every client in room without blocking.
func (h *Hub) ToRoom(room, event string, payload any) {
	frame, err := json.Marshal(Event{Event: event, Room: room, Payload: payload})
	if err != nil {
		h.logger.Warn().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
			metrics.RealtimeEventsDropped.Inc()
		}
	}
}

// RoomSize returns the number of clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ServeWS upgrades the request and serves the connection until it closes.
// The client is joined to its own user room.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID int) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]struct{}),
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	h.join(c, UserRoom(userID))
	metrics.RealtimeConnections.Inc()

	go h.writePump(c)
	h.readPump(c)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for room := range c.rooms {
		h.removeFromRoom(c, room)
	}
	delete(h.clients, c)
	close(c.send)
	metrics.RealtimeConnections.Dec()
}

// join adds c to room. It returns false when c already holds maxRooms rooms.
func (h *Hub) join(c *client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.rooms[room]; !ok && len(c.rooms) >= maxRooms {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(c, room)
}

// removeFromRoom requires h.mu to be held.
func (h *Hub) removeFromRoom(c *client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// joinable reports whether a client may subscribe to room on request.
// User rooms other than the client's own are private.
func joinable(c *client, room string) bool {
	kind, id, ok := strings.Cut(room, ":")
	if !ok {
		return false
	}
	if _, err := strconv.Atoi(id); err != nil {
		return false
	}
	switch kind {
	case "post", "channel":
		return true
	case "user":
		return room == UserRoom(c.userID)
	}
	return false
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Int("user_id", c.userID).Msg("websocket closed")
			}
			return
		}

		room := strings.TrimSpace(cmd.Room)
		switch cmd.Action {
		case "join":
			if !joinable(c, room) {
				h.logger.Debug().Int("user_id", c.userID).Str("room", room).Msg("join refused")
				continue
			}
			if !h.join(c, room) {
				h.logger.Debug().Int("user_id", c.userID).Str("room", room).Msg("room limit reached")
			}
		case "leave":
			if room == UserRoom(c.userID) {
				continue
			}
			h.leave(c, room)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
