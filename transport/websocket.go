package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/felixgeelhaar/compose-go"
)

// WebSocket dispatches every message received on a WebSocket connection and
// writes the reply back on the same connection. Messages on one connection
// are dispatched concurrently; replies carry the envelope id for matching.
type WebSocket[U any] struct {
	md       messageDispatcher[U]
	upgrader websocket.Upgrader
	cfg      wsConfig

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsConfig struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	checkOrigin  func(r *http.Request) bool
	logger       compose.Logger
}

// wsClient represents a single WebSocket connection.
type wsClient struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

// WebSocketOption configures a WebSocket transport.
type WebSocketOption func(*wsConfig)

// WithWebSocketReadTimeout sets the idle timeout between inbound messages.
func WithWebSocketReadTimeout(d time.Duration) WebSocketOption {
	return func(c *wsConfig) {
		c.readTimeout = d
	}
}

// WithWebSocketWriteTimeout sets the write timeout for replies.
func WithWebSocketWriteTimeout(d time.Duration) WebSocketOption {
	return func(c *wsConfig) {
		c.writeTimeout = d
	}
}

// WithWebSocketCheckOrigin sets the origin check function for WebSocket upgrades.
func WithWebSocketCheckOrigin(fn func(r *http.Request) bool) WebSocketOption {
	return func(c *wsConfig) {
		c.checkOrigin = fn
	}
}

// WithWebSocketLogger sets the logger for connection events.
func WithWebSocketLogger(l compose.Logger) WebSocketOption {
	return func(c *wsConfig) {
		c.logger = l
	}
}

// NewWebSocket creates a WebSocket transport. It is an http.Handler; mount
// it on the path clients connect to.
func NewWebSocket[U any](d *compose.Dispatcher[*Message, U], finalizer compose.Middleware[*Message, U], opts ...WebSocketOption) *WebSocket[U] {
	cfg := wsConfig{
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		checkOrigin:  func(*http.Request) bool { return true },
		logger:       compose.NopLogger{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &WebSocket[U]{
		md: messageDispatcher[U]{d: d, finalizer: finalizer},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.checkOrigin,
		},
		cfg:     cfg,
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and serves it until the client goes away
// or Close is called.
func (ws *WebSocket[U]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.cfg.logger.Warn("websocket upgrade failed", compose.F("error", err.Error()))
		return
	}

	client := &wsClient{conn: conn, writeTimeout: ws.cfg.writeTimeout}
	if !ws.register(client) {
		client.close()
		return
	}

	var pending sync.WaitGroup
	defer func() {
		pending.Wait()
		ws.unregister(client)
		_ = conn.Close()
	}()

	ctx := r.Context()
	for {
		if ws.cfg.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(ws.cfg.readTimeout))
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.cfg.logger.Debug("websocket read failed", compose.F("error", err.Error()))
			}
			return
		}

		// Units run on the dispatching goroutine under the inline
		// scheduler, so each message gets its own.
		pending.Add(1)
		go func() {
			defer pending.Done()
			if err := client.writeJSON(ws.md.serve(ctx, raw)); err != nil {
				ws.cfg.logger.Debug("websocket write failed", compose.F("error", err.Error()))
			}
		}()
	}
}

// Close sends a close frame to every connected client. Connections opened
// afterwards are refused.
func (ws *WebSocket[U]) Close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.closed = true
	for client := range ws.clients {
		client.close()
	}
}

func (ws *WebSocket[U]) register(c *wsClient) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.closed {
		return false
	}
	ws.clients[c] = struct{}{}
	return true
}

func (ws *WebSocket[U]) unregister(c *wsClient) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.clients, c)
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(v)
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}
