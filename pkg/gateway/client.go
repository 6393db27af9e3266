package gateway

import (
	"context"
	"time"

	"github.com/core-tools/hsu-governor/pkg/logging"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024
)

// Client is one websocket subscriber
type Client struct {
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	hub *Hub

	ctx    context.Context
	cancel context.CancelFunc

	id string

	// sessionFilter narrows the stream to one session; empty receives all
	sessionFilter string

	logger logging.Logger
}

// NewClient creates a websocket client. An empty sessionFilter subscribes
// to every session.
func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, id string, sessionFilter string, logger logging.Logger) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:          conn,
		send:          make(chan []byte, 256),
		hub:           hub,
		ctx:           clientCtx,
		cancel:        cancel,
		id:            id,
		sessionFilter: sessionFilter,
		logger:        logger,
	}
}

// wants reports whether the client subscribes to the session
func (c *Client) wants(sessionID string) bool {
	return c.sessionFilter == "" || c.sessionFilter == sessionID
}

// ReadPump consumes the websocket connection until the peer disconnects.
// Subscribers do not send payloads; reading only services pongs and
// close frames.
func (c *Client) ReadPump() {
	defer func() {
		// A stopped hub no longer services unregister; do not hang on it
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Debugf("Websocket read error, client: %s, error: %v", c.id, err)
			}
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush queued messages into the same frame batch
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
