package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	wshandler "github.com/windfall/ielts_service/internal/handler/ws"
	"github.com/windfall/ielts_service/internal/middleware"
	"github.com/windfall/ielts_service/pkg/response"
)

const (
	// Largest accepted frame; one second of 44.1 kHz mono 16-bit PCM is ~88 KB.
	maxFrameSize = 1 << 20
	sendBuffer   = 256
	stopTimeout  = 10 * time.Second
)

// Client represents a WebSocket client.
type Client struct {
	ID     string
	UserID string
	Hub    *WebSocketHub
	Conn   *websocket.Conn
	Send   chan []byte

	closeOnce sync.Once
}

// WebSocketHub manages recording connections.
type WebSocketHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	handler    *wshandler.Handler
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	wg         sync.WaitGroup
	log        zerolog.Logger
}

// NewWebSocketHub creates a new WebSocket hub. allowedOrigins follows the
// CORS setting; "*" accepts any origin.
func NewWebSocketHub(handler *wshandler.Handler, allowedOrigins []string, log zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		handler:    handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Run starts the WebSocket hub. On shutdown it closes every connection,
// which stops their recordings.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				client.Conn.Close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.ID).Str("user_id", client.UserID).Msg("Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			h.log.Info().Str("client_id", client.ID).Msg("Client disconnected")
		}
	}
}

// ServeHTTP upgrades an authenticated request and starts its pumps.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, "authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	conn.SetReadLimit(maxFrameSize)

	client := &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Hub:    h,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// Wait blocks until every connection has finished.
func (h *WebSocketHub) Wait() {
	h.wg.Wait()
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) readPump() {
	// The upgrade request's context ends with the HTTP handler, so the
	// connection runs on its own.
	ctx, cancel := context.WithCancel(context.Background())
	rec := c.Hub.handler.NewConn(c.ID, c.UserID, c.enqueue)

	defer func() {
		cancel()
		stopCtx, stop := context.WithTimeout(context.Background(), stopTimeout)
		rec.Close(stopCtx)
		stop()
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
			c.closeSend()
		}
		c.Conn.Close()
	}()

	for {
		msgType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.log.Error().Err(err).Str("client_id", c.ID).Msg("WebSocket read error")
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			rec.HandleText(ctx, message)
		case websocket.BinaryMessage:
			rec.HandleBinary(message)
		}
	}
}

// enqueue drops messages for a client that is not keeping up.
func (c *Client) enqueue(message []byte) {
	select {
	case c.Send <- message:
	default:
		c.Hub.log.Warn().Str("client_id", c.ID).Msg("WebSocket send buffer full, dropping message")
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		w, err := c.Conn.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
