package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/componentforge/forge/pkg/pipeline"
)

// writeTimeout bounds a single WebSocket send so one dead client cannot
// stall its connection goroutine indefinitely.
const writeTimeout = 10 * time.Second

// ConnectionManager manages WebSocket clients and their run subscriptions.
// Each process has one instance.
type ConnectionManager struct {
	broker *Broker

	mu          sync.RWMutex
	connections map[string]*connection
}

// connection is a single WebSocket client.
//
// subscriptions is accessed only from the goroutine that owns the
// connection (HandleConnection's read loop and its deferred cleanup), so it
// needs no lock.
type connection struct {
	id            string
	conn          *websocket.Conn
	subscriptions map[string]func() // run_id → unsubscribe
}

// NewConnectionManager creates a manager over the broker.
func NewConnectionManager(broker *Broker) *ConnectionManager {
	return &ConnectionManager{
		broker:      broker,
		connections: make(map[string]*connection),
	}
}

// clientMessage is the subscribe/unsubscribe protocol.
type clientMessage struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	RunID  string `json:"run_id"`
}

// HandleConnection manages the lifecycle of one WebSocket connection.
// Blocks until the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	c := &connection{
		id:            uuid.New().String(),
		conn:          conn,
		subscriptions: make(map[string]func()),
	}

	m.mu.Lock()
	m.connections[c.id] = c
	m.mu.Unlock()

	defer func() {
		for _, unsubscribe := range c.subscriptions {
			unsubscribe()
		}
		m.mu.Lock()
		delete(m.connections, c.id)
		m.mu.Unlock()
	}()

	m.send(ctx, c, map[string]string{"type": "connection.established", "connection_id": c.id})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.send(ctx, c, map[string]string{"type": "error", "message": "malformed message"})
			continue
		}
		switch msg.Action {
		case "subscribe":
			m.subscribe(ctx, c, msg.RunID)
		case "unsubscribe":
			if unsubscribe, ok := c.subscriptions[msg.RunID]; ok {
				unsubscribe()
				delete(c.subscriptions, msg.RunID)
			}
		default:
			m.send(ctx, c, map[string]string{"type": "error", "message": "unknown action"})
		}
	}
}

// subscribe attaches the connection to a run's event stream. Events are
// forwarded from a dedicated goroutine per subscription.
func (m *ConnectionManager) subscribe(ctx context.Context, c *connection, runID string) {
	if _, dup := c.subscriptions[runID]; dup {
		return
	}
	events, cancelSub := m.broker.Subscribe(runID)
	c.subscriptions[runID] = cancelSub

	m.send(ctx, c, map[string]string{"type": "subscription.confirmed", "run_id": runID})

	go func() {
		for event := range events {
			m.send(ctx, c, event)
		}
	}()
}

// send writes one JSON message, dropping the payload on timeout or error.
func (m *ConnectionManager) send(ctx context.Context, c *connection, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Marshal WebSocket payload", "error", err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write failed", "connection_id", c.id, "error", err)
	}
}

// ConnectionCount reports active connections (health endpoint).
func (m *ConnectionManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

var _ pipeline.ProgressSink = (*Broker)(nil)
