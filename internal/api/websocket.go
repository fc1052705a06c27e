package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/outpost-core/internal/infrastructure/config"
	"github.com/nerrad567/outpost-core/internal/infrastructure/logging"
)

// Broadcast channels clients can subscribe to.
const (
	ChannelSensors = "sensors"
	ChannelGPIO    = "gpio"
	ChannelAlerts  = "alerts"
	ChannelDevices = "devices"
	ChannelSystem  = "system"

	// ChannelAll subscribes a client to every channel at once.
	ChannelAll = "all"
)

// Inbound message types.
const (
	wsTypeSubscribe = "subscribe"
	wsTypePing      = "ping"
)

// wsSendBufferSize is the per-client outbound message buffer size.
const wsSendBufferSize = 256

// availableChannels is advertised in the connect greeting.
var availableChannels = []string{
	ChannelSensors, ChannelGPIO, ChannelAlerts, ChannelDevices, ChannelSystem, ChannelAll,
}

// WSFrame is the envelope for every server-to-client message.
type WSFrame struct {
	Channel   string `json:"channel"`
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// wsInbound is the client-to-server message shape.
type wsInbound struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

// Hub manages WebSocket connections and fans events out to subscribers.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	upgrader websocket.Upgrader
	clients  map[*WSClient]struct{}
	relay    func(channel, event string, data any)
	mu       sync.RWMutex
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

// NewHub creates a WebSocket hub. Connections from browsers are checked
// against allowedOrigins; an empty list (or "*") admits any origin.
func NewHub(cfg config.WebSocketConfig, allowedOrigins []string, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Non-browser clients send no Origin header
					return true
				}
				return originAllowed(origin, allowedOrigins)
			},
		},
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// SetRelay registers a mirror that receives every broadcast frame in addition
// to the WebSocket clients. Used to republish events onto MQTT. Passing nil
// removes the relay.
func (h *Hub) SetRelay(relay func(channel, event string, data any)) {
	h.mu.Lock()
	h.relay = relay
	h.mu.Unlock()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast sends an event to every client subscribed to the given channel
// or to "all". Delivery is best-effort: a client with a full send buffer is
// skipped without blocking the others.
// Lock ordering: hub lock is acquired first, then released before per-client
// subscription checks. This avoids holding both hub and client locks simultaneously.
func (h *Hub) Broadcast(channel, event string, data any) {
	frame := WSFrame{
		Channel:   channel,
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal broadcast frame", "channel", channel, "event", event, "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	relay := h.relay
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.isSubscribed(channel) {
			client.trySend(payload)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "event", event, "recipients", sent)
	}

	if relay != nil {
		relay(channel, event, data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the HTTP connection and attaches the client to
// the hub. New connections start with an empty subscription set; the client
// sends a subscribe message to choose channels.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}

	s.hub.Register(client)

	client.sendFrame(ChannelSystem, "connected", map[string]any{
		"message":            "Connected to Outpost WebSocket",
		"available_channels": availableChannels,
	})

	// Start read/write pumps
	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump() {
	cfg := c.hub.cfg
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendFrame(ChannelSystem, "error", map[string]string{"message": "Invalid JSON"})
		return
	}

	switch msg.Type {
	case wsTypeSubscribe:
		c.handleSubscribe(msg.Channels)
	case wsTypePing:
		c.sendFrame(ChannelSystem, "pong", map[string]any{})
	default:
		c.sendFrame(ChannelSystem, "error", map[string]string{"message": "Unknown message type: " + msg.Type})
	}
}

// handleSubscribe replaces the client's channel set with the requested one.
// Subscribing is not additive: the latest message wins, and an empty list
// unsubscribes from everything.
func (c *WSClient) handleSubscribe(channels []string) {
	if channels == nil {
		channels = []string{}
	}

	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}

	c.mu.Lock()
	c.subscriptions = subs
	c.mu.Unlock()

	c.hub.logger.Debug("websocket client subscribed", "channels", channels)

	c.sendFrame(ChannelSystem, "subscribed", map[string]any{
		"channels": channels,
	})
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during broadcast)
// and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// isSubscribed checks if the client is subscribed to a channel, either
// directly or through the "all" wildcard.
func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subscriptions[ChannelAll]; ok {
		return true
	}
	_, ok := c.subscriptions[channel]
	return ok
}

// sendFrame delivers a frame to this client only. Routes through trySend to
// safely handle closed channels during shutdown.
func (c *WSClient) sendFrame(channel, event string, data any) {
	frame := WSFrame{
		Channel:   channel,
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.trySend(payload)
}
