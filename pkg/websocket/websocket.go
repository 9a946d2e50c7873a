package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Observer receives delivery statistics from the hub. Implementations must
// be cheap; they are called while the hub holds its read lock.
type Observer interface {
	OnPublish(topic string, delivered, dropped int)
	OnSessionOpen()
	OnSessionClose()
}

// Hub is the in-process publish/subscribe bus. Topics are created on first
// subscription and removed when their last subscriber leaves. A publish is
// delivered to the subscribers registered at the moment it is made, in the
// order the publishing goroutine issued it.
type Hub struct {
	// registered connections by ID
	connections map[string]*Connection
	// topic -> connection ID -> connection
	topics map[string]map[string]*Connection

	connectionCount int64
	config          *Config
	observer        Observer

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

var (
	ErrHubClosed        = errors.New("hub closed")
	ErrNotRegistered    = errors.New("connection not registered")
	ErrLimitExceeded    = errors.New("connection limit exceeded")
	ErrQueueFull        = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

// NewHub creates a hub and starts its heartbeat loop. A nil config uses
// DefaultConfig.
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		connections: make(map[string]*Connection),
		topics:      make(map[string]map[string]*Connection),
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
	}
	go hub.run()
	return hub
}

// SetObserver installs o. Call before the hub carries traffic.
func (h *Hub) SetObserver(o Observer) {
	h.mu.Lock()
	h.observer = o
	h.mu.Unlock()
}

func (h *Hub) Config() *Config { return h.config }

// Context is cancelled when the hub closes.
func (h *Hub) Context() context.Context { return h.ctx }

func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// Register adds conn to the hub without subscribing it to anything.
func (h *Hub) Register(conn *Connection) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	if int64(len(h.connections)) >= h.config.MaxConnections {
		h.mu.Unlock()
		logrus.Warnf("connection limit reached, rejecting %s", conn.ID)
		return ErrLimitExceeded
	}
	if _, exists := h.connections[conn.ID]; exists {
		h.mu.Unlock()
		return nil
	}
	conn.Hub = h
	h.connections[conn.ID] = conn
	observer := h.observer
	h.mu.Unlock()

	atomic.AddInt64(&h.connectionCount, 1)
	if observer != nil {
		observer.OnSessionOpen()
	}
	logrus.Debugf("connection %s registered for user %s", conn.ID, conn.UserID)
	return nil
}

// Attach registers conn, subscribes it to topics and marks it joined. On
// any failure the connection is left unregistered.
func (h *Hub) Attach(conn *Connection, topics ...string) error {
	if err := h.Register(conn); err != nil {
		conn.setState(StateClosed)
		return err
	}
	for _, topic := range topics {
		if err := h.Subscribe(topic, conn); err != nil {
			h.Unregister(conn)
			return err
		}
	}
	conn.setState(StateJoined)
	return nil
}

// Unregister removes conn from every topic and from the hub, then closes
// its outbound queue. After it returns no publish reaches conn.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	if _, ok := h.connections[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	h.unsubscribeAllLocked(conn)
	delete(h.connections, conn.ID)
	conn.setState(StateClosed)
	close(conn.Send)
	observer := h.observer
	h.mu.Unlock()

	conn.markDone()
	atomic.AddInt64(&h.connectionCount, -1)
	if observer != nil {
		observer.OnSessionClose()
	}
	logrus.Debugf("connection %s unregistered", conn.ID)
}

// Subscribe adds conn to topic. Subscribing twice is a no-op.
func (h *Hub) Subscribe(topic string, conn *Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[conn.ID]; !ok {
		return ErrNotRegistered
	}
	if conn.State() == StateClosed {
		return ErrConnectionClosed
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*Connection)
		h.topics[topic] = subs
	}
	subs[conn.ID] = conn
	conn.topics[topic] = true
	return nil
}

// Unsubscribe removes conn from topic, deleting the topic once empty.
func (h *Hub) Unsubscribe(topic string, conn *Connection) {
	h.mu.Lock()
	h.unsubscribeLocked(topic, conn)
	h.mu.Unlock()
}

// UnsubscribeAll removes conn from every topic it joined.
func (h *Hub) UnsubscribeAll(conn *Connection) {
	h.mu.Lock()
	h.unsubscribeAllLocked(conn)
	h.mu.Unlock()
}

func (h *Hub) unsubscribeLocked(topic string, conn *Connection) {
	if subs, ok := h.topics[topic]; ok {
		delete(subs, conn.ID)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(conn.topics, topic)
}

func (h *Hub) unsubscribeAllLocked(conn *Connection) {
	for topic := range conn.topics {
		h.unsubscribeLocked(topic, conn)
	}
}

// Publish serializes payload once and queues it for every current
// subscriber of topic. It never blocks on the network. A topic without
// subscribers is not an error. The number of subscribers the message was
// queued for is returned.
func (h *Hub) Publish(topic string, payload interface{}) (int, error) {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		data = b
	}
	return h.PublishRaw(topic, data), nil
}

// PublishRaw queues already serialized data for topic.
func (h *Hub) PublishRaw(topic string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, conn := range h.topics[topic] {
		if conn.State() == StateClosed {
			continue
		}
		if h.trySend(conn, data) {
			delivered++
		} else {
			dropped++
			logrus.Debugf("connection %s queue full, dropped message on %s", conn.ID, topic)
		}
	}
	if h.observer != nil {
		h.observer.OnPublish(topic, delivered, dropped)
	}
	return delivered
}

// deliver queues data for a single registered connection.
func (h *Hub) deliver(conn *Connection, data []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.connections[conn.ID]; !ok || conn.State() == StateClosed {
		return ErrConnectionClosed
	}
	if !h.trySend(conn, data) {
		return ErrQueueFull
	}
	return nil
}

func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		if conn.Conn == nil {
			continue
		}
		if now.Sub(conn.lastPing()) > h.config.ConnectionTimeout {
			logrus.Warnf("connection %s heartbeat timed out", conn.ID)
			conn.Kick()
		}
	}
}

// GetConnectionCount returns the number of registered connections.
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// GetTopicSubscribers returns the number of subscribers of topic.
func (h *Hub) GetTopicSubscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topics lists the live topics in lexical order.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.topics))
	for t := range h.topics {
		out = append(out, t)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Close stops the heartbeat loop and kicks every connection. Each session
// unregisters itself as its pumps exit.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	h.closed = true
	conns := make([]*Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Kick()
	}
	logrus.Info("websocket hub closed")
}

// trySend applies the backpressure policy. It reports whether data was queued.
func (h *Hub) trySend(conn *Connection, data []byte) bool {
	if h.config.DropOnFull {
		select {
		case conn.Send <- data:
			return true
		default:
			if h.config.CloseOnBackpressure {
				conn.Kick()
			}
			return false
		}
	}
	timeout := h.config.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeoutMs * time.Millisecond
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case conn.Send <- data:
		return true
	case <-timer.C:
		if h.config.CloseOnBackpressure {
			conn.Kick()
		}
		return false
	}
}
