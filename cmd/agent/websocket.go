// Package main provides the WebSocket feed for real-time status updates.
// Presentation layers subscribe here instead of polling the local store.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Only allow connections from localhost
		return r.Host == "localhost" || strings.HasPrefix(r.Host, "localhost:")
	},
}

// WSClient represents a WebSocket client connection.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub maintains active client connections and broadcasts messages.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	mu         sync.RWMutex
}

// WSEnvelope wraps all WebSocket messages.
type WSEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// WebSocket event types.
const (
	EventStoreChanged  = "store.changed"
	EventSyncStarted   = "sync.started"
	EventSyncCompleted = "sync.completed"
	EventSyncFailed    = "sync.failed"
)

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
	go hub.run()
	return hub
}

// run manages client connections and broadcasts.
func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client send buffer is full, close connection
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(messageType string, data map[string]interface{}) {
	envelope := WSEnvelope{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[WS] Failed to marshal message: %v", err)
		return
	}

	h.broadcast <- payload
}

// BroadcastStoreChanged notifies clients that the local event store mutated;
// they should refresh derived status and pending counts.
func (h *WSHub) BroadcastStoreChanged() {
	h.Broadcast(EventStoreChanged, nil)
}

// BroadcastSyncStarted notifies clients that a reconciliation run began.
func (h *WSHub) BroadcastSyncStarted(pending int) {
	h.Broadcast(EventSyncStarted, map[string]interface{}{
		"pending": pending,
	})
}

// BroadcastSyncCompleted reports the aggregate counts of a finished run.
func (h *WSHub) BroadcastSyncCompleted(synced, errors int) {
	h.Broadcast(EventSyncCompleted, map[string]interface{}{
		"synced": synced,
		"errors": errors,
	})
}

// BroadcastSyncFailed reports a run that could not start or read the queue.
func (h *WSHub) BroadcastSyncFailed(errorCode string) {
	h.Broadcast(EventSyncFailed, map[string]interface{}{
		"error_code": errorCode,
	})
}

// ServeWS upgrades an HTTP request to a WebSocket subscription.
func (h *WSHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade failed: %v", err)
		return
	}

	client := &WSClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump discards inbound frames; the feed is one-way. It exists to detect
// closed connections and unregister the client.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards broadcasts to the client connection.
func (c *WSClient) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
