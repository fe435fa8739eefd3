package events

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/strefethen/playto-hub-go/internal/playto"
)

const (
	defaultPingInterval = 30 * time.Second
	clientSendBuffer    = 32
	writeWait           = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan playto.SessionEvent
	stop chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.stop)
		c.conn.Close()
	})
}

// Hub fans session events out to connected WebSocket clients. It implements
// playto.EventSink so sessions can publish without knowing about transports.
type Hub struct {
	mu           sync.Mutex
	clients      map[*client]struct{}
	pingInterval time.Duration
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:      make(map[*client]struct{}),
		pingInterval: defaultPingInterval,
	}
}

// Register adopts a WebSocket connection and services it until it drops.
func (h *Hub) Register(conn *websocket.Conn) {
	cl := &client{
		conn: conn,
		send: make(chan playto.SessionEvent, clientSendBuffer),
		stop: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("event subscriber connected (%d active)", count)

	go h.writeLoop(cl)
	go h.readLoop(cl)
}

// Publish sends the event to every connected client. Slow clients that
// cannot drain their buffer miss events rather than blocking playback.
func (h *Hub) Publish(event playto.SessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- event:
		default:
		}
	}
}

// ClientCount reports the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for cl := range h.clients {
		clients = append(clients, cl)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, cl := range clients {
		cl.close()
	}
}

func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(event); err != nil {
				h.drop(cl)
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(cl)
				return
			}
		case <-cl.stop:
			return
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *Hub) readLoop(cl *client) {
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			h.drop(cl)
			return
		}
	}
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	_, known := h.clients[cl]
	delete(h.clients, cl)
	count := len(h.clients)
	h.mu.Unlock()

	cl.close()
	if known {
		log.Printf("event subscriber disconnected (%d active)", count)
	}
}
