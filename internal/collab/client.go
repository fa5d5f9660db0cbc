package collab

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type frame struct {
	kind int
	data []byte
}

// Client is one websocket connection joined to the room of a note.
type Client struct {
	ID        string
	UserID    string
	SessionID string
	NoteID    string
	Conn      *websocket.Conn
	hub       *Hub
	send      chan frame
}

func NewClient(id, userID, sessionID, noteID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:        id,
		UserID:    userID,
		SessionID: sessionID,
		NoteID:    noteID,
		Conn:      conn,
		hub:       hub,
		send:      make(chan frame, 256),
	}
}

func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
		return nil
	})

	for {
		kind, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", zap.String("client", c.ID), zap.Error(err))
			}
			break
		}

		if kind != websocket.BinaryMessage {
			continue
		}

		select {
		case c.hub.Updates <- &Update{Client: c, State: message}:
		case <-c.hub.done:
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(f.kind, f.data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
