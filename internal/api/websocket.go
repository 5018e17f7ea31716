package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/simmsb/synapse-extension/internal/auth"
	"github.com/simmsb/synapse-extension/internal/infrastructure/config"
	"github.com/simmsb/synapse-extension/internal/infrastructure/logging"
	"github.com/simmsb/synapse-extension/internal/light"
)

// Message types exchanged with WebSocket clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeGetLights   = "get_lights"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResult      = "result"
	WSTypeError       = "error"

	// wsQueueSize is the per-client outbound queue length. A client whose
	// queue is full misses events rather than stalling broadcasts.
	wsQueueSize = 256
)

// Broadcast channels.
const (
	// ChannelLightStateChanged carries a light's attributes after the app
	// reports new state.
	ChannelLightStateChanged = "light.state_changed"

	// ChannelLightAction carries each turn_on/turn_off accepted by the API.
	ChannelLightAction = "light.action"

	// ChannelEntityRegistered carries each newly registered entity.
	ChannelEntityRegistered = "entity.registered"
)

var knownChannels = map[string]struct{}{
	ChannelLightStateChanged: {},
	ChannelLightAction:       {},
	ChannelEntityRegistered:  {},
}

// WSMessage is an outbound message.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is an inbound message.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, optionally, the entities whose
// events should be delivered. An empty EntityIDs list means every entity.
type WSSubscribePayload struct {
	Channels  []string `json:"channels"`
	EntityIDs []string `json:"entity_ids,omitempty"`
}

// Hub fans events out to connected WebSocket clients.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected WebSocket session.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	queue   chan []byte
	subject string
	role    auth.Role

	// lights renders the current lights for get_lights.
	lights func() []LightResponse

	mu       sync.RWMutex
	channels map[string]struct{}
	entities map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by corsMiddleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.queue)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

func (h *Hub) add(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

// remove drops c. Only the caller that actually removes it closes the
// queue, so Run and readLoop may race here safely.
func (h *Hub) remove(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.queue)
	}
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// Broadcast delivers payload on channel to every subscribed client. Map
// payloads carrying an "entity_id" respect per-client entity filters.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	var entityID string
	if m, ok := payload.(map[string]any); ok {
		entityID, _ = m["entity_id"].(string)
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.wants(channel, entityID) {
			c.enqueue(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWebSocket upgrades an authenticated request.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "missing bearer token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:      s.hub,
		conn:     conn,
		queue:    make(chan []byte, wsQueueSize),
		subject:  claims.Subject,
		role:     claims.Role,
		lights:   s.lightResponses,
		channels: make(map[string]struct{}),
		entities: make(map[string]struct{}),
	}
	s.hub.add(c)

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// lightResponses renders every registered light.
func (s *Server) lightResponses() []LightResponse {
	entries := s.entities.List(light.Domain)
	out := make([]LightResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, lightResponse(e))
	}
	return out
}

func (c *WSClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() {
		//nolint:errcheck // a failed deadline surfaces as a read error
		c.conn.SetReadDeadline(time.Now().Add(idle))
	}

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any message counts.
		extend()
		c.handle(data)
	}
}

func (c *WSClient) writeLoop(cfg config.WebSocketConfig) {
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		//nolint:errcheck // a failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.queue:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		c.subscribe(req)
	case WSTypeUnsubscribe:
		c.unsubscribe(req)
	case WSTypeGetLights:
		c.reply(req.ID, WSTypeResult, map[string]any{"lights": c.lights()})
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	default:
		c.reply(req.ID, WSTypeError, errorPayload("unknown message type: "+req.Type))
	}
}

func (c *WSClient) subscribe(req wsRequest) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &sub); err != nil || len(sub.Channels) == 0 {
		c.reply(req.ID, WSTypeError, errorPayload("subscribe needs a list of channels"))
		return
	}
	for _, ch := range sub.Channels {
		if _, ok := knownChannels[ch]; !ok {
			c.reply(req.ID, WSTypeError, errorPayload("unknown channel: "+ch))
			return
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		c.channels[ch] = struct{}{}
	}
	for _, id := range sub.EntityIDs {
		c.entities[id] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed",
		"subject", c.subject,
		"role", c.role,
		"channels", sub.Channels,
		"entity_ids", sub.EntityIDs,
	)
	c.reply(req.ID, WSTypeResult, map[string]any{"subscribed": sub.Channels})
}

func (c *WSClient) unsubscribe(req wsRequest) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(req.Payload, &sub); err != nil {
		c.reply(req.ID, WSTypeError, errorPayload("invalid unsubscribe payload"))
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.channels, ch)
	}
	for _, id := range sub.EntityIDs {
		delete(c.entities, id)
	}
	c.mu.Unlock()

	c.reply(req.ID, WSTypeResult, map[string]any{"unsubscribed": sub.Channels})
}

// wants reports whether an event on channel about entityID should reach c.
func (c *WSClient) wants(channel, entityID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if entityID == "" || len(c.entities) == 0 {
		return true
	}
	_, ok := c.entities[entityID]
	return ok
}

// enqueue queues data without blocking. Sends racing a shutdown that has
// already closed the queue are dropped.
func (c *WSClient) enqueue(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed queue
	}()

	select {
	case c.queue <- data:
	default:
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorPayload(msg string) map[string]string {
	return map[string]string{"message": msg}
}
