package live

import (
	"context"
	"net/http"
	"strings"
	"time"

	"example.com/blogfeed/internal/models"
	"nhooyr.io/websocket"
)

// TokenParser verifies a raw session token.
type TokenParser interface {
	ParseToken(raw string) models.Identity
}

// ServeWS upgrades authenticated requests to a post event stream.
// Browsers cannot set headers on a websocket handshake, so the token is
// taken from ?token= with the Authorization header as a fallback.
func ServeWS(hub *Hub, tokens TokenParser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("token")
		if raw == "" {
			raw = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}

		id := tokens.ParseToken(raw)
		if !id.IsAuthenticated() {
			http.Error(w, "Not authenticated", http.StatusUnauthorized)
			return
		}

		// Server read/write timeouts must not apply to a long-lived stream.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // CORS is open to any origin
		})
		if err != nil {
			logg.Error("live", "Websocket accept failed", err)
			return
		}

		c := newClient(hub, conn, id.UserID)
		select {
		case hub.register <- c:
		case <-r.Context().Done():
			conn.Close(websocket.StatusGoingAway, "")
			return
		}

		// The request context ends when this handler returns; the
		// connection has been hijacked and outlives it.
		go c.writePump(context.WithoutCancel(r.Context()))
	}
}
