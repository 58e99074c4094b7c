package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var ErrHubClosed = errors.New("notification hub closed")

// Hub tracks websocket clients by room and delivers events to this
// instance's connections.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	closed   bool
	upgrader websocket.Upgrader
	logger   *zap.Logger
	wg       sync.WaitGroup
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	rooms []string
	once  sync.Once
}

// NewHub builds a hub. allowedOrigins empty means any origin.
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		rooms:  make(map[string]map[*client]struct{}),
		logger: logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades the request and joins the connection to rooms. The
// connection is receive-only from the client's point of view.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, rooms ...string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		rooms: rooms,
	}

	if !h.register(c) {
		_ = conn.Close()
		return ErrHubClosed
	}

	h.wg.Add(2)
	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	for _, room := range c.rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*client]struct{})
		}
		h.rooms[room][c] = struct{}{}
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	for _, room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.mu.Unlock()

	c.close()
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Publish delivers ev to every local client in ev.Room. Clients whose send
// buffer is full are disconnected rather than blocking the publisher.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.deliver(ev.Room, payload)
	return nil
}

func (h *Hub) deliver(room string, payload []byte) {
	var slow []*client

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow websocket client", zap.String("room", room))
		h.unregister(c)
	}
}

// Clients returns the number of local connections in room.
func (h *Hub) Clients(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close disconnects every client and waits for their pumps to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := make(map[*client]struct{})
	for _, members := range h.rooms {
		for c := range members {
			all[c] = struct{}{}
		}
	}
	h.rooms = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for c := range all {
		c.close()
	}
	h.wg.Wait()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
		c.hub.wg.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// inbound messages are ignored; reading keeps pong handling alive
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("Websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.hub.wg.Done()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
