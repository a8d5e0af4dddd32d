// Package hub is the Broadcaster: it fans out bus events to every
// connected WebSocket subscriber as framed JSON messages.
package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pulsewatch/bus"
	"pulsewatch/model"
)

// Frame is the wire shape of every message sent to a subscriber.
type Frame struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Urgent    bool        `json:"urgent,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of live subscribers and translates bus events
// into framed broadcasts.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	upgrader   websocket.Upgrader
}

func New(allowedOrigins []string) *Hub {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if allowed[origin] {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				host := u.Hostname()
				return host == "localhost" || host == "127.0.0.1" || host == "::1"
			},
		},
	}
}

// Wire subscribes the hub to every event the Broadcaster forwards:
// heartbeat_received, heartbeat_failed, flatline_detected,
// pulse_changed, service_recovered, alert_triggered. Both heartbeat
// events go out as "heartbeat_update" frames, flatline_detected as
// "flatline" and alert_triggered as "alert"; the other two keep their
// event name as the frame type.
func (h *Hub) Wire(b *bus.Bus) {
	b.Subscribe(model.EventHeartbeatReceived, func(p interface{}) { h.forward("heartbeat_update", p) })
	b.Subscribe(model.EventHeartbeatFailed, func(p interface{}) { h.forward("heartbeat_update", p) })
	b.Subscribe(model.EventFlatlineDetected, func(p interface{}) { h.forwardFlatline(p) })
	b.Subscribe(model.EventPulseChanged, func(p interface{}) { h.forward(model.EventPulseChanged, p) })
	b.Subscribe(model.EventServiceRecovered, func(p interface{}) { h.forward(model.EventServiceRecovered, p) })
	b.Subscribe(model.EventAlertTriggered, func(p interface{}) { h.forwardAlert(p) })
}

func (h *Hub) forward(eventType string, payload interface{}) {
	h.Broadcast(Frame{Type: eventType, Timestamp: time.Now(), Data: payload})
}

func (h *Hub) forwardFlatline(payload interface{}) {
	fd, ok := payload.(model.FlatlineDetected)
	urgent := ok && (fd.Severity == model.FlatlineCritical || fd.Severity == model.FlatlineCatastrophic)
	h.Broadcast(Frame{Type: "flatline", Timestamp: time.Now(), Urgent: urgent, Data: payload})
}

func (h *Hub) forwardAlert(payload interface{}) {
	at, ok := payload.(model.AlertTriggered)
	urgent := ok && (at.Alert.Severity == model.AlertSevHigh || at.Alert.Severity == model.AlertSevCritical)
	h.Broadcast(Frame{Type: "alert", Timestamp: time.Now(), Urgent: urgent, Data: payload})
}

// Broadcast marshals frame and queues it for delivery to every
// connected client.
func (h *Hub) Broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("hub: marshal error: %v", err)
		return
	}
	h.broadcast <- data
}

// Run drives registration, unregistration, and delivery. It must run
// in its own goroutine for the lifetime of the process.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Send queue is full: the subscriber is slow or
					// broken. Drop it rather than block delivery to
					// everyone else.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleConnect upgrades the request to a WebSocket, registers the
// new client, and sends the initial connected frame.
func (h *Hub) HandleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: ws upgrade: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 64)}
	h.register <- c

	welcome, _ := json.Marshal(Frame{
		Type:      "connected",
		Message:   "subscribed to pulsewatch",
		Timestamp: time.Now(),
	})
	c.send <- welcome

	go c.writePump()
	go c.readPump(h)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handleInbound(data)
	}
}

type inboundFrame struct {
	Type string `json:"type"`
}

func (c *client) handleInbound(data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		return
	}
	if in.Type != "ping" {
		return
	}
	pong, _ := json.Marshal(Frame{Type: "pong", Timestamp: time.Now()})
	select {
	case c.send <- pong:
	default:
	}
}
