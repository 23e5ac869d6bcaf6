package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleet-tracking-system/fleet"
	"fleet-tracking-system/mapview"
	"fleet-tracking-system/models"
	"fleet-tracking-system/routes"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientMessage is what the route panel sends.
type clientMessage struct {
	Type    string `json:"type"` // search, select or clear
	Query   string `json:"query,omitempty"`
	RouteID string `json:"route_id,omitempty"`
}

type serverMessage struct {
	Type     string           `json:"type"`
	Frame    *mapview.Frame   `json:"frame,omitempty"`
	Routes   []routes.Summary `json:"routes,omitempty"`
	Selected string           `json:"selected,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// mapClient is one connected map. It owns its panel and renderer so each
// browser keeps its own search and selection. Messages are queued on out and
// written by the client's own writePump.
type mapClient struct {
	conn     *websocket.Conn
	panel    *routes.FilterPanel
	renderer *mapview.Renderer

	out       chan serverMessage
	done      chan struct{}
	closeOnce sync.Once
}

func newMapClient(conn *websocket.Conn, panel *routes.FilterPanel, renderer *mapview.Renderer) *mapClient {
	return &mapClient{
		conn:     conn,
		panel:    panel,
		renderer: renderer,
		out:      make(chan serverMessage, sendBuffer),
		done:     make(chan struct{}),
	}
}

// enqueue queues msg without blocking. It reports false when the client is
// closed or too far behind to accept more.
func (c *mapClient) enqueue(msg serverMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *mapClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *mapClient) writePump(onError func()) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				onError()
				return
			}
		}
	}
}

// Hub pushes a fresh frame to every connected map whenever the fleet
// changes.
type Hub struct {
	srv    *Server
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*mapClient]struct{}
	cancel  func()
}

func NewHub(srv *Server, logger *slog.Logger) *Hub {
	h := &Hub{srv: srv, logger: logger, clients: make(map[*mapClient]struct{})}
	h.cancel = srv.store.Subscribe(h.broadcast)
	return h
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade error", slog.String("error", err.Error()))
		return
	}
	c := newMapClient(conn,
		routes.NewFilterPanel(h.srv.catalog),
		mapview.NewRenderer(h.srv.engine, h.srv.center(), h.srv.zoomFor("passenger")))
	c.enqueue(h.frameFor(c, h.srv.store.Snapshot()))
	h.add(c)
	go c.writePump(func() { h.remove(c) })
	go h.readPump(c)
}

func (h *Hub) add(c *mapClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *mapClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Clients reports the number of connected maps.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) frameFor(c *mapClient, vehicles []models.Vehicle) serverMessage {
	route, _ := c.panel.SelectedRoute()
	if route != nil {
		vehicles = fleet.FilterByRoute(vehicles, route.ID)
	}
	frame := c.renderer.Render(vehicles, route)
	selected, _ := c.panel.Selected()
	return serverMessage{
		Type:     "frame",
		Frame:    &frame,
		Routes:   routes.Summaries(c.panel.Visible(), h.srv.store.Snapshot(), h.srv.estimator),
		Selected: selected,
	}
}

// broadcast runs as a store listener and must not block on a slow client:
// a client whose queue is full is disconnected.
func (h *Hub) broadcast(vehicles []models.Vehicle) {
	h.mu.Lock()
	clients := make([]*mapClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if !c.enqueue(h.frameFor(c, vehicles)) {
			h.logger.Debug("dropping slow map client")
			h.remove(c)
		}
	}
}

func (h *Hub) readPump(c *mapClient) {
	defer h.remove(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(serverMessage{Type: "error", Error: "invalid message"})
			continue
		}
		if reply, ok := h.handle(c, msg); !ok {
			c.enqueue(reply)
			continue
		}
		if !c.enqueue(h.frameFor(c, h.srv.store.Snapshot())) {
			return
		}
	}
}

// handle applies a panel message. It returns false with an error reply
// when the message is rejected.
func (h *Hub) handle(c *mapClient, msg clientMessage) (serverMessage, bool) {
	switch msg.Type {
	case "search":
		c.panel.SetQuery(msg.Query)
	case "select":
		if _, err := c.panel.Select(msg.RouteID); err != nil {
			return serverMessage{Type: "error", Error: "Route not found"}, false
		}
	case "clear":
		c.panel.Clear()
	default:
		return serverMessage{Type: "error", Error: "unknown message type"}, false
	}
	return serverMessage{}, true
}

// Close unsubscribes from the store and disconnects every client.
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*mapClient]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}
