// Package realtime pushes forum events to connected browsers over WebSockets.
//
// HOW IT FITS:
// Services call Hub.Publish after a write commits. The hub encodes the event
// once and hands it to every connected client's outbound queue. Delivery is
// best effort:
//
//   - clients connected right now receive each event (at least once)
//   - a client whose queue is full is disconnected instead of blocking the hub;
//     on reconnect it refetches to catch up
//   - nothing is stored for clients that are offline
//
// ONE GOROUTINE OWNS THE CLIENT SET:
// register, unregister and broadcast all go through channels into run(), so
// the client map needs no lock and a send can never race a close.
package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sakif/xswarm-forum/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 // clients only send control frames

	clientBuffer    = 64
	broadcastBuffer = 256
)

// Hub fans events out to every connected WebSocket client.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	clients   atomic.Int64
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewHub creates a hub. allowedOrigins limits which sites may open a socket;
// empty allows any origin, as a same-origin deployment needs.
func NewHub(logger *slog.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		logger:     logger,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, broadcastBuffer),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
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

// Start launches the hub's run loop. Calling it more than once is harmless.
func (h *Hub) Start() {
	h.startOnce.Do(func() {
		h.logger.Info("starting realtime hub")
		h.wg.Add(1)
		go h.run()
	})
}

// Stop disconnects every client and waits for the run loop to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.logger.Info("shutting down realtime hub", slog.Int64("clients", h.clients.Load()))
		close(h.done)
		h.wg.Wait()
	})
}

// ClientCount reports how many sockets are connected.
func (h *Hub) ClientCount() int {
	return int(h.clients.Load())
}

// Publish encodes the event and queues it for every client. It never blocks:
// if the hub is saturated or stopped the event is dropped and logged.
func (h *Hub) Publish(event model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encoding realtime event",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	h.Broadcast(data)
}

// Broadcast queues an already-encoded event. The NATS bridge uses it to
// relay events published by other instances.
func (h *Hub) Broadcast(data []byte) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("realtime broadcast queue full, dropping event")
	}
}

func (h *Hub) run() {
	defer h.wg.Done()

	clients := make(map[*client]struct{})
	drop := func(c *client) {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.send)
			h.clients.Add(-1)
		}
	}

	for {
		select {
		case c := <-h.register:
			clients[c] = struct{}{}
			h.clients.Add(1)
			h.logger.Debug("realtime client connected", slog.String("clientID", c.id))

		case c := <-h.unregister:
			drop(c)
			h.logger.Debug("realtime client disconnected", slog.String("clientID", c.id))

		case msg := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("realtime client too slow, disconnecting", slog.String("clientID", c.id))
					drop(c)
				}
			}

		case <-h.done:
			for c := range clients {
				drop(c)
			}
			return
		}
	}
}

// ServeHTTP upgrades GET /ws to a WebSocket and streams events until the
// client goes away or the hub stops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "realtime hub stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{id: uuid.NewString(), hub: h, conn: conn, send: make(chan []byte, clientBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

// client is one WebSocket connection. send is closed by the hub's run loop
// only, which tells writePump to say goodbye and exit.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards anything the browser sends and keeps the read deadline
// fresh on every pong. It returns when the connection dies.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error",
					slog.String("clientID", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
