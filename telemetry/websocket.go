package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/bhr3310/motioncore/logging"
	"github.com/bhr3310/motioncore/utils"
)

const (
	clientQueueSize = 64
	writeTimeout    = time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WebsocketSink broadcasts every frame as a JSON text message to all connected websocket
// clients. Slow clients lose frames rather than slowing the publisher.
type WebsocketSink struct {
	logger  logging.Logger
	workers utils.StoppableWorkers
	dropped atomic.Int64

	mu      sync.Mutex
	closed  bool
	clients map[*wsClient]struct{}
}

// NewWebsocketSink returns a sink with no clients. Mount it as an http.Handler to accept them.
func NewWebsocketSink(logger logging.Logger) *WebsocketSink {
	return &WebsocketSink{
		logger:  logger,
		workers: utils.NewStoppableWorkers(),
		clients: map[*wsClient]struct{}{},
	}
}

// ServeHTTP upgrades the request and registers the client for broadcasts.
func (s *WebsocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientQueueSize)}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		//nolint:errcheck
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.workers.AddWorkers(
		func(ctx context.Context) { s.writeLoop(ctx, c) },
		func(ctx context.Context) { s.readLoop(c) },
	)
	s.mu.Unlock()
	s.logger.Infow("telemetry client connected", "remote", r.RemoteAddr)
}

func (s *WebsocketSink) remove(c *wsClient) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		if err := c.conn.Close(); err != nil {
			s.logger.Debugw("failed to close websocket", "error", err)
		}
	}
}

func (s *WebsocketSink) writeLoop(ctx context.Context, c *wsClient) {
	defer s.remove(c)
	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			//nolint:errcheck
			c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// readLoop only notices the peer going away; clients never send anything meaningful.
func (s *WebsocketSink) readLoop(c *wsClient) {
	defer s.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (s *WebsocketSink) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped returns the number of messages not delivered because a client queue was full.
func (s *WebsocketSink) Dropped() int64 {
	return s.dropped.Load()
}

// Publish implements Sink.
func (s *WebsocketSink) Publish(frame Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return
	}
	msg, err := json.Marshal(frame)
	if err != nil {
		s.logger.Debugw("failed to encode frame", "error", err)
		return
	}
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.dropped.Inc()
		}
	}
}

// Close disconnects every client and refuses new ones.
func (s *WebsocketSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.workers.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		//nolint:errcheck
		c.conn.Close()
	}
	return nil
}
