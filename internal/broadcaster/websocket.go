package broadcaster

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// wsWriteTimeout bounds a single message write to a WebSocket client.
const wsWriteTimeout = 10 * time.Second

// wsClient is one /events/ws connection: it owns a Subscribe channel onto
// the Broadcaster and pumps events to the socket until the connection
// drops. Adapted from web/handlers/websocket.go's Client/Hub split,
// collapsed onto Broadcaster's existing pub/sub instead of a second
// hand-rolled register/unregister hub, since Broadcaster already is one.
type wsClient struct {
	conn *websocket.Conn
	ch   <-chan Event
	done func()
}

// serveWebSocket upgrades r to a WebSocket connection and streams every
// broadcast Event to it as JSON text frames, identical payloads to the SSE
// endpoint (§4.7's "supplemental transport" contract).
func (s *Service) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		log.Printf("broadcaster: websocket upgrade failed: %v", err)
		return
	}

	ch, unsubscribe := s.broadcaster.Subscribe()
	client := &wsClient{conn: conn, ch: ch, done: unsubscribe}
	client.pump(r.Context())
}

func (c *wsClient) pump(ctx context.Context) {
	defer c.done()
	defer func() { _ = c.conn.Close(websocket.StatusNormalClosure, "") }()

	// readLoop exists solely to detect client-initiated close; this
	// transport is server-push only.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case evt, ok := <-c.ch:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err = c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Printf("broadcaster: websocket write failed: %v", err)
				return
			}
		}
	}
}
