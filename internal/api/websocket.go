package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nerrad567/motorbank-core/internal/audit"
	"github.com/nerrad567/motorbank-core/internal/driver"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/config"
	"github.com/nerrad567/motorbank-core/internal/infrastructure/logging"
	"github.com/nerrad567/motorbank-core/internal/motor"
	"github.com/nerrad567/motorbank-core/internal/protocol"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeCommand     = "command"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsCommandTimeout bounds a command received over the socket.
	wsCommandTimeout = 10 * time.Second
)

// Broadcast channels.
const (
	ChannelMotorState = "motor.state_changed"
	ChannelMotorEvent = "motor.event"
	ChannelConnection = "connection.changed"
	ChannelFeedback   = "feedback.received"
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// wsOutbound is WSMessage with an arbitrary payload for encoding.
type wsOutbound struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSCommandPayload is the payload for command messages: either a raw
// command ("Open3") or a number and action pair.
type WSCommandPayload struct {
	Command string `json:"command,omitempty"`
	Number  int    `json:"number,omitempty"`
	Action  string `json:"action,omitempty"`
}

// MotorStatePayload is broadcast on motor.state_changed.
type MotorStatePayload struct {
	driver.Status
	Previous motor.State `json:"previous"`
	Origin   string      `json:"origin"`
}

// MotorEventPayload is broadcast on motor.event.
type MotorEventPayload struct {
	Number int         `json:"number"`
	Name   string      `json:"name"`
	Event  motor.Event `json:"event"`
}

// FeedbackPayload is broadcast on feedback.received.
type FeedbackPayload struct {
	States map[int]motor.State `json:"states"`
	Error  string              `json:"error,omitempty"`
}

// Commander executes commands received over the socket.
type Commander interface {
	Execute(ctx context.Context, source, command string) (driver.Result, error)
	ExecuteAction(ctx context.Context, source string, number int, action string) (driver.Result, error)
}

// Hub manages WebSocket connections and broadcasts driver activity. It is a
// driver.Listener.
type Hub struct {
	cfg       config.WebSocketConfig
	logger    *logging.Logger
	commander Commander
	clients   *xsync.MapOf[*WSClient, struct{}]
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub. commander may be nil, in which case
// command messages are answered with an error.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, commander Commander) *Hub {
	return &Hub{
		cfg:       cfg,
		logger:    logger,
		commander: commander,
		clients:   xsync.NewMapOf[*WSClient, struct{}](),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.clients.Store(client, struct{}{})
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub. Whoever removes the client
// from the map closes its send channel, so it is closed once.
func (h *Hub) Unregister(client *WSClient) {
	if _, existed := h.clients.LoadAndDelete(client); existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return h.clients.Size()
}

// Broadcast sends an event to all clients subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	if h.clients.Size() == 0 {
		return
	}

	data, err := json.Marshal(wsOutbound{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	sent := 0
	h.clients.Range(func(client *WSClient, _ struct{}) bool {
		if client.isSubscribed(channel) {
			client.trySend(data)
			sent++
		}
		return true
	})
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// MotorChanged implements driver.Listener.
func (h *Hub) MotorChanged(status driver.Status, n motor.Notification) {
	switch n := n.(type) {
	case motor.RawStateChanged:
		h.Broadcast(ChannelMotorState, MotorStatePayload{
			Status:   status,
			Previous: n.Previous,
			Origin:   n.Origin.String(),
		})
	case motor.CommandEvent:
		h.Broadcast(ChannelMotorEvent, MotorEventPayload{
			Number: status.Number,
			Name:   status.Name,
			Event:  n.Event,
		})
	}
}

// ConnectionChanged implements driver.Listener.
func (h *Hub) ConnectionChanged(connected bool) {
	h.Broadcast(ChannelConnection, map[string]bool{"connected": connected})
}

// FeedbackReceived implements driver.Listener.
func (h *Hub) FeedbackReceived(batch protocol.Batch, err error) {
	payload := FeedbackPayload{States: batch.ByNumber()}
	if err != nil {
		payload.Error = err.Error()
	}
	h.Broadcast(ChannelFeedback, payload)
}

func (h *Hub) closeAll() {
	h.clients.Range(func(client *WSClient, _ struct{}) bool {
		if _, existed := h.clients.LoadAndDelete(client); existed {
			close(client.send)
			if client.conn != nil {
				client.conn.Close()
			}
		}
		return true
	})
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
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

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
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
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
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

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg, true)
	case WSTypeUnsubscribe:
		c.handleSubscribe(msg, false)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	case WSTypeCommand:
		c.handleCommand(msg)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// handleSubscribe adds (or removes) channels from the client's list.
func (c *WSClient) handleSubscribe(msg WSMessage, subscribe bool) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		c.sendError(msg.ID, "invalid "+msg.Type+" payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if subscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
		c.hub.logger.Debug("websocket client subscribed", "channels", sub.Channels)
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: sub.Channels})
}

func (c *WSClient) handleCommand(msg WSMessage) {
	if c.hub.commander == nil {
		c.sendError(msg.ID, "commands not available")
		return
	}

	var cmd WSCommandPayload
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		c.sendError(msg.ID, "invalid command payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsCommandTimeout)
	defer cancel()

	var (
		res driver.Result
		err error
	)
	if cmd.Command != "" {
		res, err = c.hub.commander.Execute(ctx, audit.SourceWebSocket, cmd.Command)
	} else {
		res, err = c.hub.commander.ExecuteAction(ctx, audit.SourceWebSocket, cmd.Number, cmd.Action)
	}
	if err != nil {
		c.sendError(msg.ID, err.Error())
		return
	}
	c.sendResponse(msg.ID, WSTypeResponse, res)
}

// trySend queues data for the client, dropping it when the buffer is full
// or the client is already gone.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(wsOutbound{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
