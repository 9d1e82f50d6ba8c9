package devserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/kitchenly/client-go/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Development server: accept any origin.
		return true
	},
}

type wsClient struct {
	conn *websocket.Conn
	send chan models.StatusEvent
}

// Hub fans order status changes out to connected clients (the live feed in
// the SDK, dashboards, anything that dials /ws).
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan models.StatusEvent
	register   chan *wsClient
	unregister chan *wsClient
	logger     *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan models.StatusEvent, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.WithField("client_count", len(h.clients)).Info("Live feed client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.logger.WithField("client_count", len(h.clients)).Info("Live feed client disconnected")

		case event := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// BroadcastStatus queues a status change for all connected clients. A full
// queue drops the event rather than blocking the request path.
func (h *Hub) BroadcastStatus(orderID string, status models.Status) {
	event := models.StatusEvent{
		Type:      models.StatusEventType,
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now(),
		Source:    "devserver",
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping status event")
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan models.StatusEvent, 64),
	}
	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) writePump(client *wsClient) {
	defer client.conn.Close()
	for event := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := client.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// readPump discards inbound frames; the stream is one-way. Its job is to
// notice the peer going away.
func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.unregister <- client
		client.conn.Close()
	}()
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
