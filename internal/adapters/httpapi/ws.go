package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// HubRegistry is the surface a live-updates hub exposes to the HTTP layer.
type HubRegistry interface {
	RegisterConn(conn *websocket.Conn)
	UnregisterConn(conn *websocket.Conn)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// OrderUpdates upgrades the connection and subscribes it to order status
// broadcasts. Clients are not expected to send anything; the read loop exists
// only to detect disconnects.
func (h *Handler) OrderUpdates(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "updates_unavailable", "")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	h.hub.RegisterConn(conn)

	go func() {
		defer h.hub.UnregisterConn(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
