package live

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"example.com/blogfeed/internal/logger"
)

var logg = logger.New()

// Hub tracks connected clients and fans post events out to them.
// The client set is owned by the Run goroutine.
type Hub struct {
	clients map[*Client]struct{}
	count   atomic.Int64

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run is the hub's event loop. It returns when ctx is done, after
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			logg.Info("live", "Hub stopped")
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			logg.Debug("live", "Client connected for user_id="+c.userID)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				logg.Debug("live", "Client disconnected for user_id="+c.userID)
			}

		case data := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// slow consumer
					logg.Info("live", "Dropping slow client for user_id="+c.userID)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Broadcast queues ev for every client. It never blocks; when the queue is
// full the event is dropped.
func (h *Hub) Broadcast(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
		return nil
	default:
		return ErrHubBusy
	}
}
