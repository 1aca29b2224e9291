// Package statushub delivers publishing status events to live observers over
// WebSocket, with a per-job snapshot store as the poll fallback.
package statushub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

// Hub maintains the set of active clients and routes status events to the
// clients watching each job. It is an explicit process-scoped component: the
// owner calls Run once and Stop on shutdown.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     logging.Logger
	mutex      sync.RWMutex
}

// Client represents a WebSocket client connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	jobIDs map[string]bool // watched job ids
	closed bool
	mu     sync.RWMutex // guards jobIDs and closed
	logger logging.Logger
}

// Envelope is the wire frame sent to clients.
type Envelope struct {
	Type  string             `json:"type"`
	Event models.StatusEvent `json:"event"`
}

// SubscriptionMessage represents a subscription request from a client
type SubscriptionMessage struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	JobIDs []string `json:"job_ids"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("client_count", count).Info("Observer connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.shutdown()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("client_count", count).Info("Observer disconnected")

		case message := <-h.broadcast:
			h.deliver(message)

		case <-h.done:
			h.mutex.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.shutdown()
				client.conn.Close()
			}
			h.mutex.Unlock()
			return
		}
	}
}

// Stop tears the hub down and disconnects every client.
func (h *Hub) Stop() {
	close(h.done)
}

// deliver fans a status event out to the clients watching its job. Delivery
// is best effort: a client with a full send buffer is disconnected, the poll
// fallback covers it.
func (h *Hub) deliver(message []byte) {
	var envelope Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal broadcast message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if !client.watching(envelope.Event.JobID) {
			continue
		}

		if !client.trySend(message) {
			client.shutdown()
			delete(h.clients, client)
		}
	}
}

// BroadcastEvent queues a status event for delivery to watching clients.
func (h *Hub) BroadcastEvent(event models.StatusEvent) {
	message, err := json.Marshal(Envelope{Type: "status_event", Event: event})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal status event")
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping status event")
	}
}

// ClientCount returns the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		jobIDs: make(map[string]bool),
		logger: h.logger,
	}

	client.hub.register <- client

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

func (c *Client) watching(jobID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jobIDs[jobID]
}

// trySend queues a message without blocking. It reports false when the send
// buffer is full or the client is already shut down.
func (c *Client) trySend(message []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once, ending the write pump. The
// closed flag keeps late senders from hitting the closed channel.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps subscription messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}

		c.handleSubscription(&subMsg)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush any queued events into the same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// handleSubscription processes subscription/unsubscription requests
func (c *Client) handleSubscription(msg *SubscriptionMessage) {
	switch msg.Action {
	case "subscribe":
		c.mu.Lock()
		for _, id := range msg.JobIDs {
			c.jobIDs[id] = true
		}
		watched := make([]string, 0, len(c.jobIDs))
		for id := range c.jobIDs {
			watched = append(watched, id)
		}
		c.mu.Unlock()

		c.logger.WithField("job_ids", msg.JobIDs).Info("Observer subscribed to jobs")
		c.sendControl(map[string]interface{}{
			"type":    "subscription_confirmed",
			"job_ids": watched,
		})

	case "unsubscribe":
		c.mu.Lock()
		for _, id := range msg.JobIDs {
			delete(c.jobIDs, id)
		}
		remaining := make([]string, 0, len(c.jobIDs))
		for id := range c.jobIDs {
			remaining = append(remaining, id)
		}
		c.mu.Unlock()

		c.logger.WithField("job_ids", msg.JobIDs).Info("Observer unsubscribed from jobs")
		c.sendControl(map[string]interface{}{
			"type":    "unsubscription_confirmed",
			"job_ids": remaining,
		})
	}
}

// sendControl sends a control message to the client
func (c *Client) sendControl(data map[string]interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal control message")
		return
	}

	if !c.trySend(message) {
		// The write pump is wedged or gone. Hand the disconnect to the hub
		// loop, which owns the client set.
		c.hub.unregister <- c
	}
}
