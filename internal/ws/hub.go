package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"whatsapp-backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are filtered by the CORS layer in front
	},
}

// Sender routes a client-originated send_message frame into the outgoing
// message path. *pipeline.Pipeline implements it.
type Sender interface {
	SendForUser(userID, conversationID, contactID uint, content, msgType string) (*models.Message, error)
}

// Event is the JSON envelope pushed to clients.
type Event struct {
	Type         string               `json:"type"`
	Message      *models.Message      `json:"message,omitempty"`
	Contact      *models.Contact      `json:"contact,omitempty"`
	Conversation *models.Conversation `json:"conversation,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Hub tracks open connections per user id. A user may hold several
// connections; each is stored under its own connection id so removal is a
// map deletion, never a scan.
type Hub struct {
	jwtSecret string

	mu      sync.RWMutex
	clients map[uint]map[string]*Client

	sender Sender
}

func NewHub(jwtSecret string) *Hub {
	return &Hub{
		jwtSecret: jwtSecret,
		clients:   make(map[uint]map[string]*Client),
	}
}

// SetSender wires the outgoing-message path after construction.
func (h *Hub) SetSender(s Sender) {
	h.sender = s
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[string]*Client)
		h.clients[c.userID] = conns
	}
	conns[c.id] = c
	log.Info().Uint("user_id", c.userID).Str("conn_id", c.id).Msg("websocket client authenticated")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[c.userID]; ok {
		if _, ok := conns[c.id]; ok {
			delete(conns, c.id)
			if len(conns) == 0 {
				delete(h.clients, c.userID)
			}
		}
	}
}

// ConnectionCount reports open authenticated connections for a user.
func (h *Hub) ConnectionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// NotifyNewMessage pushes a new_message event to every open connection of
// the target user. Users without connections simply miss the push; there is
// no offline queueing.
func (h *Hub) NotifyNewMessage(userID uint, msg *models.Message, contact *models.Contact, conv *models.Conversation) {
	h.push(userID, Event{
		Type:         "new_message",
		Message:      msg,
		Contact:      contact,
		Conversation: conv,
	})
}

func (h *Hub) push(userID uint, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal ws event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			// Slow consumer; drop the frame rather than block the hub.
			log.Warn().Uint("user_id", userID).Str("conn_id", client.id).Msg("ws send buffer full, dropping event")
		}
	}
}

// ServeWs upgrades the HTTP request and starts the connection pumps. The
// connection stays anonymous until the client sends an auth frame.
func (h *Hub) ServeWs(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		id:   uuid.NewString(),
	}

	go client.writePump()
	go client.readPump()
}
