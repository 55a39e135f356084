// Package feed pushes newly issued challans to operator dashboards over
// websocket.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/irisdrone/echallan/internal/metrics"
	"github.com/irisdrone/echallan/internal/models"
	"github.com/sirupsen/logrus"
)

// Message types sent to clients
const (
	TypeChallanIssued = "challan_issued"
	TypePong          = "pong"
	TypeError         = "error"
)

// Message is one frame on the feed
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Hub tracks connected dashboard clients and fans out issued challans.
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	upgrader websocket.Upgrader
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// NewHub creates a Hub. Call Run before registering clients.
func NewHub(log logrus.FieldLogger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboards are served from other origins; the route is behind auth.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     log.WithField("component", "FEEDHUB"),
		metrics: m,
	}
}

// Run is the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	h.log.Info("Challan feed hub started")
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.clientsMu.Unlock()
			h.metrics.SetFeedClients(n)
			h.log.WithField("remote", client.remoteAddr).Info("Client connected")

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.clientsMu.Unlock()
			h.metrics.SetFeedClients(n)
			h.log.WithField("remote", client.remoteAddr).Info("Client disconnected")

		case <-h.stop:
			h.clientsMu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientsMu.Unlock()
			h.metrics.SetFeedClients(0)
			return
		}
	}
}

// Stop disconnects every client and ends Run.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	client := newClient(h, conn, r.RemoteAddr)
	select {
	case h.register <- client:
	case <-h.stop:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

// PublishIssued sends c to every connected client. Slow clients miss
// messages rather than block issuance.
func (h *Hub) PublishIssued(c *models.Citation) {
	data, err := json.Marshal(c)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode challan")
		return
	}
	msg, _ := json.Marshal(Message{Type: TypeChallanIssued, Data: data})

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.log.WithField("remote", client.remoteAddr).Warn("Client buffer full, dropping challan")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
