package ws

import (
	"encoding/json"
	"time"

	"whatsapp-backend/internal/auth"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one WebSocket connection. userID is zero until the auth frame
// is accepted.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	userID uint
	authed bool
}

// clientFrame is the inbound message envelope from the browser.
type clientFrame struct {
	Type           string `json:"type"`
	Token          string `json:"token,omitempty"`
	ConversationID uint   `json:"conversation_id,omitempty"`
	ContactID      uint   `json:"contact_id,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
}

func (c *Client) readPump() {
	defer func() {
		if c.authed {
			c.hub.unregister(c)
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
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("websocket closed unexpectedly")
			}
			break
		}
		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.sendEvent(Event{Type: "error", Error: "malformed frame"})
		return
	}

	switch frame.Type {
	case "auth":
		claims, err := auth.ValidateToken(c.hub.jwtSecret, frame.Token)
		if err != nil {
			c.sendEvent(Event{Type: "error", Error: "invalid token"})
			return
		}
		c.userID = claims.UserID
		c.authed = true
		c.hub.register(c)
		c.sendEvent(Event{Type: "auth_success"})

	case "send_message":
		if !c.authed {
			c.sendEvent(Event{Type: "error", Error: "authentication required"})
			return
		}
		if c.hub.sender == nil {
			c.sendEvent(Event{Type: "error", Error: "sending unavailable"})
			return
		}
		_, err := c.hub.sender.SendForUser(c.userID, frame.ConversationID, frame.ContactID, frame.Content, frame.MessageType)
		if err != nil {
			log.Warn().Err(err).Uint("user_id", c.userID).Msg("ws send_message failed")
			c.sendEvent(Event{Type: "error", Error: "failed to send message"})
		}
		// The delivered message comes back as a new_message push.

	default:
		c.sendEvent(Event{Type: "error", Error: "unknown frame type"})
	}
}

func (c *Client) sendEvent(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
