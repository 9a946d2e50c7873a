package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle stage of a connection.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// InboundMessage is a client frame. Only Type is decoded up front; the
// handler decodes the rest from Raw.
type InboundMessage struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// Decode unmarshals the whole frame into v.
func (m *InboundMessage) Decode(v interface{}) error {
	return json.Unmarshal(m.Raw, v)
}

// MessageHandler handles the commands a session accepts. It is not called
// for transport frames such as ping.
type MessageHandler interface {
	HandleMessage(ctx context.Context, conn *Connection, msg *InboundMessage)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, conn *Connection, msg *InboundMessage)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, conn *Connection, msg *InboundMessage) {
	f(ctx, conn, msg)
}

// Connection is one subscriber of the hub. Conn is nil for subscribers that
// are not backed by a websocket, such as SSE streams and tests; those read
// Send themselves and watch Done.
type Connection struct {
	ID       string
	UserID   string
	Role     string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	Handler  MessageHandler
	Metadata map[string]interface{}

	mu       sync.RWMutex
	lastSeen time.Time
	state    int32
	// guarded by Hub.mu
	topics map[string]bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewConnection builds a connection in the connecting state. ws may be nil.
func NewConnection(hub *Hub, ws *websocket.Conn, userID, role string, handler MessageHandler) *Connection {
	size := DefaultMessageBufferSize
	if hub != nil && hub.config.MessageBufferSize > 0 {
		size = hub.config.MessageBufferSize
	}
	return &Connection{
		ID:       generateConnectionID(),
		UserID:   userID,
		Role:     role,
		Conn:     ws,
		Send:     make(chan []byte, size),
		Hub:      hub,
		Handler:  handler,
		Metadata: make(map[string]interface{}),
		lastSeen: time.Now(),
		topics:   make(map[string]bool),
		done:     make(chan struct{}),
	}
}

func generateConnectionID() string {
	return "conn_" + uuid.NewString()
}

func (c *Connection) State() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *Connection) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}

// Done is closed once the connection is kicked or unregistered.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Kick asks the session to terminate. The owning pump unregisters it.
func (c *Connection) Kick() {
	c.markDone()
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *Connection) lastPing() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// Topics returns the topics the connection is subscribed to.
func (c *Connection) Topics() []string {
	if c.Hub == nil {
		return nil
	}
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	return out
}

// IsSubscribed reports whether the connection currently receives topic.
func (c *Connection) IsSubscribed(topic string) bool {
	if c.Hub == nil {
		return false
	}
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	return c.topics[topic]
}

// SendJSON queues v for this connection only. It fails instead of
// blocking when the queue is full or the connection has gone away.
func (c *Connection) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.Hub == nil {
		return ErrNotRegistered
	}
	return c.Hub.deliver(c, data)
}

// SessionOptions describe a websocket session before it is upgraded.
type SessionOptions struct {
	UserID   string
	Role     string
	Topics   []string
	Handler  MessageHandler
	Metadata map[string]interface{}
}

func newUpgrader(cfg *Config) websocket.Upgrader {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
		EnableCompression: cfg.EnableCompression,
	}
}

// HandleWebSocket upgrades the request, attaches the session to the hub with
// the requested topics and starts its pumps. Authentication must have
// happened before this is called.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, opts SessionOptions) (*Connection, error) {
	upgrader := newUpgrader(hub.config)
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("websocket upgrade failed: %v", err)
		return nil, err
	}

	if hub.config.EnableCompression {
		ws.EnableWriteCompression(true)
		if hub.config.CompressionLevel != 0 {
			_ = ws.SetCompressionLevel(hub.config.CompressionLevel)
		}
	}

	conn := NewConnection(hub, ws, opts.UserID, opts.Role, opts.Handler)
	for k, v := range opts.Metadata {
		conn.Metadata[k] = v
	}

	if err := hub.Attach(conn, opts.Topics...); err != nil {
		deadline := time.Now().Add(time.Second)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), deadline)
		_ = ws.Close()
		return nil, err
	}

	go conn.writePump()
	go conn.readPump()
	return conn, nil
}

func (c *Connection) readPump() {
	defer func() {
		c.Hub.Unregister(c)
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logrus.Errorf("websocket read error on %s: %v", c.ID, err)
			}
			return
		}
		c.touch()
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
		c.handleMessage(message)
	}
}

// writePump owns every write to the socket. Each queued event becomes one
// text frame.
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval * time.Second
	}
	writeTimeout := c.Hub.config.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Kick()
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Kick()
				return
			}
		}
	}
}

// handleMessage decodes one client frame. Malformed frames are logged and
// ignored; they never end the session.
func (c *Connection) handleMessage(message []byte) {
	msg := &InboundMessage{}
	if err := json.Unmarshal(message, msg); err != nil || msg.Type == "" {
		logrus.Warnf("ignoring malformed message on %s: %v", c.ID, err)
		return
	}
	msg.Raw = message

	switch msg.Type {
	case MessageTypePing:
		c.handlePing()
	default:
		c.dispatch(msg)
	}
}

func (c *Connection) handlePing() {
	if err := c.SendJSON(map[string]interface{}{
		"type":      MessageTypePong,
		"timestamp": time.Now().UTC(),
	}); err != nil {
		logrus.Debugf("pong to %s not queued: %v", c.ID, err)
	}
}

func (c *Connection) dispatch(msg *InboundMessage) {
	if c.Handler == nil {
		logrus.Debugf("no handler for %q on %s", msg.Type, c.ID)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("handler panic on %s for %q: %v", c.ID, msg.Type, r)
		}
	}()
	c.Handler.HandleMessage(c.Hub.ctx, c, msg)
}

// Receive feeds a raw client frame through the same path as frames read
// from the socket. Transports without a read pump use it.
func (c *Connection) Receive(message []byte) {
	c.touch()
	c.handleMessage(message)
}
