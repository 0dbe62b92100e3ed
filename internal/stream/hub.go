// Package stream pushes session ticks and alerts to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/and161185/biasmeter/internal/monitor"
	"github.com/and161185/biasmeter/model"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrTooManyClients = errors.New("maximum stream clients reached")

const (
	DefaultMaxClients = 100
	sendQueue         = 32
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = 30 * time.Second
)

// Message is one frame sent to subscribers.
type Message struct {
	Type    string `json:"type"` // "tick", "alert" or "closed"
	Session string `json:"session"`
	Data    any    `json:"data,omitempty"`
}

type client struct {
	conn    *websocket.Conn
	session string
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans session events out to websocket clients subscribed to that session.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]struct{}
	pending    int // upgrades in flight, counted against maxClients
	upgrader   websocket.Upgrader
	maxClients int
	logger     *zap.SugaredLogger
}

// NewHub creates a hub accepting at most maxClients connections (DefaultMaxClients if <= 0).
func NewHub(logger *zap.SugaredLogger, maxClients int) *Hub {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		clients:    make(map[*client]struct{}),
		maxClients: maxClients,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Serve upgrades the request and streams events of sessionID until the
// client disconnects or the session is closed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	h.mu.Lock()
	if len(h.clients)+h.pending >= h.maxClients {
		h.mu.Unlock()
		http.Error(w, ErrTooManyClients.Error(), http.StatusServiceUnavailable)
		return ErrTooManyClients
	}
	h.pending++
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	c := &client{conn: conn, session: sessionID, send: make(chan []byte, sendQueue), done: make(chan struct{})}

	h.mu.Lock()
	h.pending--
	if err == nil {
		h.clients[c] = struct{}{}
	}
	h.mu.Unlock()
	if err != nil {
		return err
	}
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	go h.readLoop(c)
	h.writeLoop(c)
	return nil
}

// readLoop only detects disconnects; clients do not send anything.
func (h *Hub) readLoop(c *client) {
	defer c.close()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugf("stream %s: read: %v", c.session, err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			h.drain(c)
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes frames queued before the client was closed.
func (h *Hub) drain(c *client) {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// OnTick broadcasts a tick result.
func (h *Hub) OnTick(_ context.Context, sessionID string, res monitor.TickResult) {
	h.broadcast(Message{Type: "tick", Session: sessionID, Data: res})
}

// OnAlert broadcasts an alert.
func (h *Hub) OnAlert(_ context.Context, sessionID string, ev model.AlertEvent) {
	h.broadcast(Message{Type: "alert", Session: sessionID, Data: ev})
}

// CloseSession sends a final frame to the subscribers of a stopped session and disconnects them.
func (h *Hub) CloseSession(sessionID string) {
	h.broadcast(Message{Type: "closed", Session: sessionID})
	for _, c := range h.subscribers(sessionID) {
		c.close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.close()
	}
}

// Clients returns the number of subscribers of a session.
func (h *Hub) Clients(sessionID string) int {
	return len(h.subscribers(sessionID))
}

func (h *Hub) subscribers(sessionID string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*client
	for c := range h.clients {
		if c.session == sessionID {
			out = append(out, c)
		}
	}
	return out
}

// broadcast never blocks: a client whose queue is full is disconnected.
func (h *Hub) broadcast(msg Message) {
	subs := h.subscribers(msg.Session)
	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("stream %s: marshal %s: %v", msg.Session, msg.Type, err)
		return
	}
	for _, c := range subs {
		select {
		case c.send <- data:
		default:
			h.logger.Warnf("stream %s: slow client dropped", msg.Session)
			c.close()
		}
	}
}

var _ monitor.Observer = (*Hub)(nil)
