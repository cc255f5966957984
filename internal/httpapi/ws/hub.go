// Package ws implements the real-time push channels: /ws/routes,
// /ws/events, /ws/eta and /ws/monitoring. Grounded on
// KritsadaR27-saan's chat service hub (register/unregister/broadcast
// channels guarded by a mutex, readPump/writePump goroutines per
// connection), adapted from gin to the stdlib http.Handler the rest of
// this module's transport uses, and from a single conversation-scoped
// hub to one hub per named channel.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dispatch/pkg/logger"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 90 * time.Second
	// heartbeatPeriod matches the 30s server heartbeat contract.
	heartbeatPeriod = 30 * time.Second
	maxMessageSize  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Envelope is the shape of every message pushed on a channel.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans messages out to every client connected to one named channel
// (routes, events, eta, monitoring).
type Hub struct {
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mutex   sync.RWMutex
	clients map[*Client]bool
}

// Client is a middleman between one websocket connection and its Hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewHub builds an unstarted Hub; call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run drives the hub's register/unregister/broadcast loop. It has no stop
// signal: it returns only if the register channel is closed, which nothing
// in this package does, so it runs for the life of the process.
func (h *Hub) Run() {
	for {
		select {
		case client, ok := <-h.register:
			if !ok {
				return
			}
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// Broadcast pushes an envelope of the given type to every client on this
// channel. Marshal failures are logged and dropped; they indicate a bug
// in the caller, not a transient condition.
func (h *Hub) Broadcast(msgType string, data any) {
	env := Envelope{Type: msgType, Data: data, Timestamp: time.Now().UTC()}
	payload, err := json.Marshal(env)
	if err != nil {
		logger.Error("ws: failed to marshal envelope", "type", msgType, "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logger.Warn("ws: broadcast channel full, dropping message", "type", msgType)
	}
}

// ClientCount reports how many connections are currently attached,
// for the monitoring channel's own self-reporting.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket connection and attaches
// it to the hub. One goroutine pair (read/write pump) is spawned per
// connection, same split as the teacher's HandleWebSocket.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("ws: upgrade failed", "error", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 32)}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads client messages until the connection fails. Every message
// received, like every pong frame, extends the read deadline. A
// {"type":"ping"} message is answered with a pong envelope; since this
// module's channels are server-push only, any other message is discarded.
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
				logger.Warn("ws: connection closed unexpectedly", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var ping struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &ping); err == nil && ping.Type == "ping" {
			pong, _ := json.Marshal(Envelope{Type: "pong", Timestamp: time.Now().UTC()})
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}

// writePump pumps hub-broadcast messages to the connection and sends a
// heartbeat envelope on every tick, matching the §6 30s heartbeat contract.
func (c *Client) writePump() {
	ticker := time.NewTicker(heartbeatPeriod)
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
			heartbeat, _ := json.Marshal(Envelope{Type: "heartbeat", Timestamp: time.Now().UTC()})
			if err := c.conn.WriteMessage(websocket.TextMessage, heartbeat); err != nil {
				return
			}
		}
	}
}
