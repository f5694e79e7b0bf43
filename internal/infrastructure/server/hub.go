package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/rngpool/internal/infrastructure/logging"
	"github.com/GriffinCanCode/rngpool/internal/pool"
)

const (
	defaultClientBuffer = 64
	writeWait           = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans received samples out to websocket clients. A slow client loses
// samples rather than slowing the receive loop.
type Hub struct {
	logger *logging.Logger
	buffer int

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

type client struct {
	send chan pool.Sample
	quit chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.quit) })
}

// NewHub creates a hub with a per-client buffer of the given size.
func NewHub(logger *logging.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		logger:  logger,
		buffer:  buffer,
		clients: make(map[*client]struct{}),
	}
}

// Publish offers s to every client without blocking.
func (h *Hub) Publish(s pool.Sample) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- s:
			h.published.Add(1)
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many deliveries were skipped for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) register() (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{send: make(chan pool.Sample, h.buffer), quit: make(chan struct{})}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// ServeWS upgrades the request and streams samples as JSON text frames until
// the client goes away or the hub is closed.
func (h *Hub) ServeWS(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c, ok := h.register()
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		return
	}
	defer h.unregister(c)
	h.logger.Debug("Stream client connected", zap.String("remote", ctx.Request.RemoteAddr))

	// Reads only detect the peer closing.
	go func() {
		defer c.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case s := <-c.send:
			data, err := sonic.ConfigStd.Marshal(s)
			if err != nil {
				h.logger.Warn("Failed to encode sample", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("Stream write failed", zap.Error(err))
				return
			}
		case <-c.quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
