package hub

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/loomworks/loom/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size in bytes.
	maxMessageSize = 64 * 1024

	// Outbound queue depth per connection. A peer that falls this far
	// behind is treated as dead.
	sendBufferSize = 64
)

var errSlowConsumer = errors.New("send buffer full")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server upgrades HTTP requests to WebSocket connections and pumps
// their events through the hub.
type Server struct {
	hub    *Hub
	logger zerolog.Logger
}

// NewServer creates a WebSocket server for the hub.
func NewServer(hub *Hub, logger zerolog.Logger) *Server {
	return &Server{
		hub:    hub,
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// Serve handles one WebSocket connection for its entire lifetime.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	wc := &wsConn{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	client := s.hub.Registry().Add(wc)
	metrics.HubConnections.Inc()

	s.logger.Debug().Str("conn_id", client.ID()).Msg("connection opened")

	go wc.writePump()
	s.readPump(r, client, wc)

	s.hub.Registry().Remove(client.ID())
	metrics.HubConnections.Dec()
	_ = wc.Close()

	s.logger.Debug().Str("conn_id", client.ID()).Msg("connection closed")
}

// readPump reads inbound payloads and hands them to the hub one at a
// time, preserving per-connection FIFO order.
func (s *Server) readPump(r *http.Request, client *Client, wc *wsConn) {
	wc.conn.SetReadLimit(maxMessageSize)
	_ = wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	wc.conn.SetPongHandler(func(string) error {
		return wc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("conn_id", client.ID()).Msg("read error")
			}
			return
		}
		s.hub.HandleInbound(r.Context(), client, raw)
	}
}

// wsConn adapts a gorilla connection to the hub's Conn interface with a
// buffered outbound queue so one slow peer never stalls a fan-out.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	once sync.Once
	done chan struct{}
}

// Send queues a payload without blocking. A full buffer marks the peer
// as a slow consumer: the connection is closed and the send fails.
func (c *wsConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		_ = c.Close()
		return errSlowConsumer
	}
}

// Close terminates the connection. Safe to call multiple times.
func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
