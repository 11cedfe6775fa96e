package realtime

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Send pings to the peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	writeWait = 10 * time.Second

	// Clients only send control frames; anything larger is a protocol error.
	maxMessageSize = 4 * 1024
)

// Client pumps one subscription's events to a websocket connection.
type Client struct {
	conn *websocket.Conn
	sub  *Subscription
	log  zerolog.Logger
}

func NewClient(conn *websocket.Conn, sub *Subscription, logger zerolog.Logger) *Client {
	return &Client{
		conn: conn,
		sub:  sub,
		log: logger.With().
			Str("sub_id", sub.ID.String()).
			Uint64("request_id", sub.RequestID).
			Str("uid", sub.ActorUID).
			Logger(),
	}
}

// Serve runs both pumps and blocks until the connection is done. The
// subscription is always closed on return.
func (c *Client) Serve() {
	go c.readPump()
	c.writePump()
}

// readPump discards client frames and detects a dropped connection.
func (c *Client) readPump() {
	defer func() {
		c.sub.Close()
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug().Err(err).Msg("unexpected close")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sub.Close()
		c.conn.Close()
	}()

	events := c.sub.Events()
	for {
		select {
		case ev, ok := <-events:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Subscription ended: closed, dropped or shutting down.
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
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
