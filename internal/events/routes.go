package events

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The hub serves trusted LAN clients; tokens are checked by the auth
	// middleware before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RegisterRoutes wires the event stream endpoint to the router.
func RegisterRoutes(router chi.Router, hub *Hub) {
	router.Get("/v1/events/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}
		hub.Register(conn)
	})
}
