package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/countdown/go/internal/countdown/events"
	"github.com/mcdev12/countdown/go/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Hub fans signals out to every connected viewer. Signals are delivered in
// the order Notify was called; a viewer that cannot keep up is disconnected
// and is expected to reconnect and re-pull.
type Hub struct {
	connections map[*Connection]struct{}
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan events.Signal
}

// Connection is one viewer's WebSocket.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	hub  *Hub

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int // per-connection queue
	QueueSize       int // hub-wide queue
	CheckOrigin     func(r *http.Request) bool
}

// Stats describes the connected viewers.
type Stats struct {
	TotalConnections int `json:"total_connections"`
	QueuedSignals    int `json:"queued_signals"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		QueueSize:       1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewHub creates a hub. Call Run to start delivering.
func NewHub(config ConnectionConfig) *Hub {
	defaults := DefaultConnectionConfig()
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaults.SendBuffer
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}

	return &Hub{
		connections: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan events.Signal, config.QueueSize),
	}
}

// Run delivers queued signals until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("broadcast hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("broadcast hub shutting down")
			h.closeAll()
			return
		case sig := <-h.broadcastCh:
			h.handleBroadcast(sig)
		}
	}
}

// Notify queues sig for delivery. It never blocks.
func (h *Hub) Notify(sig events.Signal) {
	select {
	case h.broadcastCh <- sig:
	default:
		metrics.IncSignalDropped("websocket", "queue_full")
		log.Warn().Str("signal", string(sig.Type)).Msg("broadcast channel full, dropping signal")
	}
}

// ServeWS upgrades the request and registers the viewer.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, h.config.SendBuffer),
		hub:         h,
		ConnectedAt: time.Now(),
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", c.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("viewer connected")
	return nil
}

func (h *Hub) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[c] = struct{}{}
	metrics.SetViewers(len(h.connections))
}

func (h *Hub) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[c]; !ok {
		return
	}
	delete(h.connections, c)
	close(c.Send)
	metrics.SetViewers(len(h.connections))

	log.Info().
		Str("connection_id", c.ID).
		Dur("connected_for", time.Since(c.ConnectedAt)).
		Msg("viewer disconnected")
}

func (h *Hub) snapshot() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		conns = append(conns, c)
	}
	return conns
}

func (h *Hub) handleBroadcast(sig events.Signal) {
	data, err := json.Marshal(sig)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal signal for broadcast")
		return
	}

	targets := h.snapshot()
	for _, c := range targets {
		if !h.enqueue(c, data) {
			metrics.IncSignalDropped("websocket", "slow_viewer")
			log.Warn().
				Str("connection_id", c.ID).
				Msg("connection send buffer full, closing connection")
			h.unregister(c)
			c.Conn.Close()
		}
	}

	metrics.IncSignal(string(sig.Type))
	log.Debug().
		Str("signal", string(sig.Type)).
		Int("count", sig.Count).
		Int("connections", len(targets)).
		Msg("signal broadcasted")
}

// enqueue hands data to c unless c is full or already unregistered.
func (h *Hub) enqueue(c *Connection, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.connections[c]; !ok {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) closeAll() {
	for _, c := range h.snapshot() {
		h.unregister(c)
	}
}

// Stats returns statistics about active connections
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return Stats{
		TotalConnections: len(h.connections),
		QueuedSignals:    len(h.broadcastCh),
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only services control frames; viewers never send commands.
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
