package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ecomerse-microservice/orders-microservice/internal/orders"
)

// StatusUpdate is the message broadcast when an order changes status.
type StatusUpdate struct {
	OrderID string    `json:"order_id"`
	Status  string    `json:"status"`
	At      time.Time `json:"at"`
}

// Hub manages WebSocket clients and broadcasts order status updates to them.
// Publishing is best effort: when the broadcast buffer is full the update is
// dropped rather than stalling order processing.
type Hub struct {
	connections map[*websocket.Conn]struct{}
	Register    chan *websocket.Conn
	Unregister  chan *websocket.Conn
	Broadcast   chan []byte
	mu          sync.Mutex
}

// NewHub constructs a Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		Register:    make(chan *websocket.Conn),
		Unregister:  make(chan *websocket.Conn),
		Broadcast:   make(chan []byte, 64),
	}
}

// NotifyStatus implements the status notifier port for order processing.
func (h *Hub) NotifyStatus(orderID string, status orders.Status, at time.Time) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(StatusUpdate{
		OrderID: orderID,
		Status:  string(status),
		At:      at,
	})
	if err != nil {
		return
	}
	select {
	case h.Broadcast <- payload:
	default:
	}
}

// RegisterConn subscribes a connection to broadcasts.
func (h *Hub) RegisterConn(conn *websocket.Conn) {
	h.Register <- conn
}

// UnregisterConn drops a connection and closes it.
func (h *Hub) UnregisterConn(conn *websocket.Conn) {
	h.Unregister <- conn
}

// Run processes register/unregister/broadcast events until the context ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case conn := <-h.Register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.Unregister:
			h.mu.Lock()
			delete(h.connections, conn)
			h.mu.Unlock()
			conn.Close()
		case msg := <-h.Broadcast:
			h.mu.Lock()
			for conn := range h.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.connections, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.connections {
		conn.Close()
		delete(h.connections, conn)
	}
}
