package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

type client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	identity Identity
	send     chan []byte
	channels map[string]struct{}
}

// clientMessage is what a connected client may send. subscribe-job and
// unsubscribe-job are shorthands for the job:<id> channel.
type clientMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
	JobID   string `json:"jobId,omitempty"`
}

func newClient(hub *Hub, conn *websocket.Conn, id Identity) *client {
	return &client{
		id:       uuid.NewString(),
		hub:      hub,
		conn:     conn,
		identity: id,
		send:     make(chan []byte, sendBuffer),
		channels: make(map[string]struct{}),
	}
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.hub.remove(c)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug().Err(err).Str("conn_id", c.id).Str("user_id", c.identity.UserID).Msg("Realtime client read error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError(&SubscriptionError{Code: CodeUnknownChannel, Message: "malformed message"})
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *client) handle(ctx context.Context, msg clientMessage) {
	channel := msg.Channel
	switch msg.Action {
	case "subscribe-job":
		channel = "job:" + msg.JobID
		fallthrough
	case "subscribe":
		if err := c.hub.authorizer.Authorize(ctx, c.identity, channel); err != nil {
			var subErr *SubscriptionError
			if !errors.As(err, &subErr) {
				subErr = &SubscriptionError{Channel: channel, Code: CodeForbidden, Message: "authorization failed"}
			}
			c.sendError(subErr)
			return
		}
		c.hub.subscribe(c, channel)

	case "unsubscribe-job":
		channel = "job:" + msg.JobID
		fallthrough
	case "unsubscribe":
		c.hub.unsubscribe(c, channel)

	default:
		c.sendError(&SubscriptionError{Channel: channel, Code: CodeUnknownChannel, Message: "unknown action " + msg.Action})
	}
}

func (c *client) sendError(subErr *SubscriptionError) {
	payload, err := json.Marshal(Envelope{Event: "subscription:error", Channel: subErr.Channel, Data: subErr})
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.hub.dropped.Add(1)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
