package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/betsync/go/internal/protocol"
	"github.com/mcdev12/betsync/go/internal/round"
)

var (
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

// Session is the game as seen by the transport
type Session interface {
	Register(sub round.Subscriber)
	Unregister(id string)
	PlaceBet(id, choice string) error
	RequestSync(id string) error
}

// ConnectionManager manages the viewer WebSocket connections
type ConnectionManager struct {
	session Session

	connections map[string]*Connection
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
}

// Connection is one viewer WebSocket. It implements round.Subscriber.
type Connection struct {
	id      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time // for stats

	limiter   *rate.Limiter
	quit      chan struct{}
	closeOnce sync.Once
}

// ConnectionConfig tunes the viewer sockets
type ConnectionConfig struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	InboundRate     rate.Limit
	InboundBurst    int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig accepts any origin and about five commands a second
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		InboundRate:     5,
		InboundBurst:    10,
		CheckOrigin:     OriginChecker([]string{"*"}),
	}
}

// OriginChecker allows the listed origins; "*" allows any
func OriginChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// NewConnectionManager creates a connection manager attached to a game session
func NewConnectionManager(session Session, config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		session:     session,
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and joins it to the game
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		id:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		limiter:     rate.NewLimiter(cm.config.InboundRate, cm.config.InboundBurst),
		quit:        make(chan struct{}),
	}

	cm.mu.Lock()
	cm.connections[connection.id] = connection
	total := len(cm.connections)
	cm.mu.Unlock()

	// the snapshot is queued before the pumps start
	cm.session.Register(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.id).
		Str("remote_addr", r.RemoteAddr).
		Int("total_connections", total).
		Msg("viewer connected")

	return nil
}

// release removes the connection from the game and from the manager
func (cm *ConnectionManager) release(conn *Connection) {
	cm.mu.Lock()
	_, exists := cm.connections[conn.id]
	delete(cm.connections, conn.id)
	cm.mu.Unlock()

	if !exists {
		return
	}
	cm.session.Unregister(conn.id)
	conn.close()

	log.Info().Str("connection_id", conn.id).Msg("connection closed")
}

// CloseAll flushes pending messages and closes every connection
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		conn.close()
	}
	log.Info().Int("connections", len(targets)).Msg("closed all connections")
}

// Count returns the number of open connections
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// GetConnectionStats reports the open connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{TotalConnections: len(cm.connections)}
	now := time.Now()
	for _, conn := range cm.connections {
		if age := now.Sub(conn.ConnectedAt); age > stats.OldestConnection {
			stats.OldestConnection = age
		}
	}
	return stats
}

// ConnectionStats is the payload of the stats endpoint
type ConnectionStats struct {
	TotalConnections int           `json:"total_connections"`
	OldestConnection time.Duration `json:"oldest_connection_ns"`
}

// ID returns the connection id
func (c *Connection) ID() string { return c.id }

// Deliver queues a payload for the write pump without blocking. A full
// buffer means the viewer is too slow and the connection is dropped.
func (c *Connection) Deliver(payload []byte) error {
	select {
	case <-c.quit:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.Send <- payload:
		return nil
	default:
		log.Warn().
			Str("connection_id", c.id).
			Msg("viewer too slow, dropping connection")
		c.close()
		return ErrSendBufferFull
	}
}

func (c *Connection) close() {
	c.closeOnce.Do(func() { close(c.quit) })
}

// writePump is the only goroutine that writes to the socket
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("write to viewer failed")
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("ping to viewer failed")
				return
			}

		case <-c.quit:
			c.flush()
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// flush writes whatever is still queued
func (c *Connection) flush() {
	for {
		select {
		case message := <-c.Send:
			if err := c.write(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteWait))
	return c.Conn.WriteMessage(messageType, data)
}

// readPump feeds viewer commands to the session until the socket fails
func (c *Connection) readPump() {
	defer c.Manager.release(c)

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.id).
					Msg("viewer socket closed unexpectedly")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.PongWait))

		if !c.limiter.Allow() {
			log.Warn().Str("connection_id", c.id).Msg("inbound rate exceeded, dropping message")
			continue
		}
		c.handleClientMessage(message)
	}
}

// handleClientMessage dispatches a viewer command to the game. Malformed
// and unknown messages are logged and ignored.
func (c *Connection) handleClientMessage(message []byte) {
	msg, err := protocol.DecodeClient(message)
	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.id).
			Msg("ignoring client message")
		return
	}

	switch m := msg.(type) {
	case protocol.PlaceBet:
		if err := c.Manager.session.PlaceBet(c.id, m.Bet); err != nil {
			log.Debug().Err(err).Str("connection_id", c.id).Msg("bet not accepted")
		}
	case protocol.TimeRequest:
		if err := c.Manager.session.RequestSync(c.id); err != nil {
			log.Debug().Err(err).Str("connection_id", c.id).Msg("time request failed")
		}
	}
}
