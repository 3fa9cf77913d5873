package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"wc-reservation-backend/internal/metrics"
	"wc-reservation-backend/internal/mw"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Handler consumes decoded inbound messages.
type Handler interface {
	Handle(ctx context.Context, from Peer, msg Message)
}

// Hub is the websocket Sink. It tracks live connections and fans events out
// to them through per-client send queues.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	upgrader websocket.Upgrader
	limiter  *mw.IPRateLimiter
	log      zerolog.Logger
}

// Client is one websocket connection.
type Client struct {
	id   string
	ip   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// NewHub creates a hub. An empty origins list accepts any origin. limiter
// may be nil to disable inbound rate limiting.
func NewHub(origins []string, limiter *mw.IPRateLimiter, log zerolog.Logger) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		limiter: limiter,
		log:     log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
		},
	}
	return h
}

// Broadcast queues ev for every connected client.
func (h *Hub) Broadcast(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Name).Msg("encode broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.enqueue(c, b)
	}
}

// Reply queues ev for a single client.
func (h *Hub) Reply(to Peer, ev Event) {
	c, ok := to.(*Client)
	if !ok {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Name).Msg("encode reply")
		return
	}
	h.enqueue(c, b)
}

// Count returns the number of live clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.shutdown()
		delete(h.clients, c)
	}
	metrics.ConnectedClients.Set(0)
}

// ServeWS upgrades the request and pumps messages between the connection
// and handler until either side goes away.
func (h *Hub) ServeWS(handler Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn().Err(err).Str("ip", c.ClientIP()).Msg("websocket upgrade failed")
			return
		}

		client := &Client{
			id:   uuid.NewString(),
			ip:   c.ClientIP(),
			conn: conn,
			send: make(chan []byte, sendBuffer),
			done: make(chan struct{}),
		}
		h.register(client)
		h.log.Info().Str("client", client.id).Str("ip", client.ip).Msg("client connected")

		go h.writePump(client)
		h.readPump(context.WithoutCancel(c.Request.Context()), client, handler)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.ConnectedClients.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		metrics.ConnectedClients.Dec()
	}
	h.mu.Unlock()
	c.shutdown()
}

// enqueue never blocks; a client whose queue is full is disconnected.
func (h *Hub) enqueue(c *Client, b []byte) {
	select {
	case <-c.done:
	case c.send <- b:
	default:
		h.log.Warn().Str("client", c.id).Msg("send queue full, dropping client")
		c.shutdown()
	}
}

func (h *Hub) readPump(ctx context.Context, c *Client, handler Handler) {
	defer func() {
		h.unregister(c)
		h.log.Info().Str("client", c.id).Msg("client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("client", c.id).Msg("read failed")
			}
			return
		}

		if h.limiter != nil && !h.limiter.Allow(c.ip) {
			metrics.GatewayErrors.WithLabelValues(ErrMsgRateLimited).Inc()
			h.Reply(c, Event{Name: EventError, Data: ErrorPayload{Message: ErrMsgRateLimited}})
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			metrics.GatewayErrors.WithLabelValues(ErrMsgBadRequest).Inc()
			h.Reply(c, Event{Name: EventError, Data: ErrorPayload{Message: ErrMsgBadRequest}})
			continue
		}
		handler.Handle(ctx, c, msg)
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// shutdown stops the write pump, which closes the socket and so ends the
// read pump.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}
