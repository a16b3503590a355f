package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shivsys/noticeboard/internal/auth"
	"github.com/shivsys/noticeboard/internal/infrastructure/config"
	"github.com/shivsys/noticeboard/internal/infrastructure/logging"
)

// Live feed protocol message types.
const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"
	msgPong        = "pong"
	msgEvent       = "event"
	msgResponse    = "response"
	msgError       = "error"
)

const (
	// clientQueueSize is the per-client outbound queue. A client that
	// cannot drain it loses messages rather than stalling the broadcast.
	clientQueueSize = 128

	// wsIOBufferSize sizes the upgrader's read and write buffers.
	// Feed messages are small JSON; 2 KiB covers them comfortably.
	wsIOBufferSize = 2048
)

// feedMessage is the JSON envelope exchanged with live feed clients.
type feedMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// channelList is the payload of subscribe and unsubscribe messages.
type channelList struct {
	Channels []string `json:"channels"`
}

// Hub fans notice feed events out to connected WebSocket clients.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*feedClient]struct{}
	mu      sync.RWMutex
}

// feedClient is one connected live feed consumer.
type feedClient struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]struct{}
	mu       sync.RWMutex
	// Identity carried over from the WebSocket ticket.
	principalID string
	kind        auth.Kind
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsIOBufferSize,
	WriteBufferSize: wsIOBufferSize,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by the CORS middleware.
		return true
	},
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *feedClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client. Only the caller that actually removes the
// entry closes the send channel, so shutdown and a concurrent read error
// cannot double-close it.
func (h *Hub) Unregister(client *feedClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast delivers an event to every client subscribed to the channel.
// The client set is snapshotted under the hub lock and the sends happen
// after release, so a hub lock and a client lock are never held together.
func (h *Hub) Broadcast(channel string, payload any) {
	msg := feedMessage{
		Type:      msgEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*feedClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range clients {
		if client.subscribedTo(channel) {
			client.enqueue(data)
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", delivered)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects every client and closes their send channels so the
// write pumps exit.
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

// handleWebSocket upgrades the connection to a WebSocket. Authentication
// is by single-use ticket from POST /auth/ws-ticket, passed as a query
// parameter so the JWT itself never appears in a URL.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.validateTicket(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &feedClient{
		hub:         s.hub,
		conn:        conn,
		send:        make(chan []byte, clientQueueSize),
		channels:    make(map[string]struct{}),
		principalID: entry.principalID,
		kind:        entry.kind,
	}

	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump consumes messages from the connection until it drops.
func (c *feedClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

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
		// Any inbound traffic counts as liveness, not just protocol pongs.
		// Browsers cannot answer protocol-level pings themselves.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump drains the send queue onto the connection and keeps the
// connection alive with periodic pings.
func (c *feedClient) writePump(cfg config.WebSocketConfig) {
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
				// Hub closed the queue.
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

// handleMessage dispatches one inbound protocol message.
func (c *feedClient) handleMessage(data []byte) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case msgSubscribe:
		channels, err := decodeChannels(msg.Payload)
		if err != nil {
			c.sendError(msg.ID, "invalid subscribe payload")
			return
		}
		c.mu.Lock()
		for _, ch := range channels {
			c.channels[ch] = struct{}{}
		}
		c.mu.Unlock()
		c.hub.logger.Info("websocket client subscribed", "channels", channels)
		c.reply(msg.ID, msgResponse, map[string]any{"subscribed": channels})
	case msgUnsubscribe:
		channels, err := decodeChannels(msg.Payload)
		if err != nil {
			c.sendError(msg.ID, "invalid unsubscribe payload")
			return
		}
		c.mu.Lock()
		for _, ch := range channels {
			delete(c.channels, ch)
		}
		c.mu.Unlock()
		c.reply(msg.ID, msgResponse, map[string]any{"unsubscribed": channels})
	case msgPing:
		c.reply(msg.ID, msgPong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// decodeChannels extracts the channel list from a subscribe or
// unsubscribe payload. The payload arrives as whatever json.Unmarshal
// produced for an any, so it is round-tripped through JSON once.
func decodeChannels(payload any) ([]string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var sel channelList
	if err := json.Unmarshal(raw, &sel); err != nil {
		return nil, err
	}
	return sel.Channels, nil
}

// enqueue hands data to the client's write pump. Full queues drop the
// message; a queue closed by a concurrent disconnect is absorbed.
func (c *feedClient) enqueue(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Slow client, drop.
	}
}

// subscribedTo reports whether the client listens on the channel.
func (c *feedClient) subscribedTo(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// reply sends a protocol response to the client via the write queue.
func (c *feedClient) reply(id, msgType string, payload any) {
	msg := feedMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// sendError sends an error message to the client.
func (c *feedClient) sendError(id, message string) {
	c.reply(id, msgError, map[string]string{"message": message})
}
