package live

import (
	"context"
	"errors"
	"time"

	"nhooyr.io/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBufSize  = 32
)

var ErrHubBusy = errors.New("live: broadcast queue full")

// Client is one browser connection. It only receives.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufSize),
	}
}

// writePump delivers queued events and keeps the connection alive until the
// peer goes away or the hub drops the client.
func (c *Client) writePump(ctx context.Context) {
	// CloseRead answers control frames and cancels ctx when the peer closes.
	ctx = c.conn.CloseRead(ctx)

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		select {
		case c.hub.unregister <- c:
		case <-time.After(writeWait):
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				logg.Debug("live", "Write failed for user_id="+c.userID+": "+err.Error())
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
