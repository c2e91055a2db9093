package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ginuineca/ArtistSync2/internal/apperr"
	"github.com/ginuineca/ArtistSync2/internal/user"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 8192                // Maximum frame size allowed from peer.
)

// Client is a middleman between one websocket connection and the hub. Its
// liveness is the websocket ping/pong cycle: a peer that stops ponging is
// detected within pongWait and unregistered, so presence cannot leak a dead
// connection indefinitely.
type Client struct {
	hub    *Hub
	engine *Engine
	conn   *websocket.Conn

	// Buffered channel of outbound frames; doubles as the user's personal
	// notification channel.
	send chan []byte

	UserID uuid.UUID
	User   user.Public

	logger *slog.Logger
}

func NewClient(hub *Hub, engine *Engine, conn *websocket.Conn, u user.Public, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		engine: engine,
		conn:   conn,
		send:   make(chan []byte, 256),
		UserID: u.ID,
		User:   u,
		logger: logger,
	}
}

func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) sendEvent(event string, data any) {
	c.enqueue(encodeEvent(event, data))
}

func (c *Client) sendError(err error) {
	c.sendEvent(EvError, errorEvent{Message: apperr.UserMessage(err)})
}

// ReadPump pumps commands from the websocket connection into the engine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "user", c.UserID, "err", err)
			}
			break
		}
		c.dispatch(raw)
	}
}

// dispatch decodes one inbound frame and runs the matching engine command.
// Commands are fire and forget: failures come back as error events, never
// as closed connections.
func (c *Client) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError(apperr.Validation("malformed event"))
		return
	}

	ctx := context.Background()

	switch env.Event {
	case EvConversationJoin:
		var p joinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError(apperr.Validation("malformed event data"))
			return
		}
		if err := c.engine.Join(ctx, c, p.ConversationID); err != nil {
			c.sendError(err)
		}

	case EvConversationLeave:
		var p joinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError(apperr.Validation("malformed event data"))
			return
		}
		c.engine.Leave(c, p.ConversationID)

	case EvMessageSend:
		var p sendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError(apperr.Validation("malformed event data"))
			return
		}
		if _, err := c.engine.Send(ctx, c.User, p.ConversationID, p.Content, nil, p.ReplyTo); err != nil {
			c.sendError(err)
		}

	case EvMessagesMarkRead:
		var p joinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError(apperr.Validation("malformed event data"))
			return
		}
		if err := c.engine.MarkRead(ctx, c.UserID, p.ConversationID); err != nil {
			c.sendError(err)
		}

	case EvMessageTyping:
		var p joinPayload
		if json.Unmarshal(env.Data, &p) == nil {
			c.engine.Typing(c.UserID, p.ConversationID)
		}

	case EvMessageStopTyping:
		var p joinPayload
		if json.Unmarshal(env.Data, &p) == nil {
			c.engine.StopTyping(c.UserID, p.ConversationID)
		}

	case EvGetOnlineUsers:
		c.sendEvent(EvOnlineUsersList, c.hub.Presence().OnlineUsers())

	default:
		c.sendError(apperr.Validation("unknown event: " + env.Event))
	}
}

// WritePump pumps frames from the send channel to the websocket connection.
func (c *Client) WritePump() {
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

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Drain queued frames into the same writer to cut syscalls.
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
