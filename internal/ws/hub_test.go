package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"whatsapp-backend/internal/auth"
	"whatsapp-backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "ws-test-secret"

type fakeSender struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
}

type sendCall struct {
	UserID         uint
	ConversationID uint
	ContactID      uint
	Content        string
}

func (f *fakeSender) SendForUser(userID, conversationID, contactID uint, content, msgType string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{userID, conversationID, contactID, content})
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{Content: content}, nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSender) call(i int) sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func setupHub(t *testing.T) (*Hub, *fakeSender, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(testSecret)
	sender := &fakeSender{}
	hub.SetSender(sender)

	r := gin.New()
	r.GET("/ws", hub.ServeWs)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return hub, sender, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var event Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func authenticate(t *testing.T, conn *websocket.Conn, userID uint) {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, "user")
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": token}))
	event := readEvent(t, conn)
	require.Equal(t, "auth_success", event.Type)
}

func waitForConnections(t *testing.T, hub *Hub, userID uint, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ConnectionCount(userID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("user %d: expected %d connections, have %d", userID, want, hub.ConnectionCount(userID))
}

func TestAuthFrame(t *testing.T) {
	_, _, url := setupHub(t)

	t.Run("invalid token rejected", func(t *testing.T) {
		conn := dial(t, url)
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "bogus"}))
		event := readEvent(t, conn)
		assert.Equal(t, "error", event.Type)
	})

	t.Run("valid token accepted", func(t *testing.T) {
		conn := dial(t, url)
		authenticate(t, conn, 5)
	})
}

func TestNotifyNewMessage(t *testing.T) {
	hub, _, url := setupHub(t)

	conn := dial(t, url)
	authenticate(t, conn, 9)
	waitForConnections(t, hub, 9, 1)

	msg := &models.Message{ID: 1, Content: "hola", Direction: models.DirectionIn}
	hub.NotifyNewMessage(9, msg, &models.Contact{ID: 2, Phone: "5551234"}, &models.Conversation{ID: 3, UnreadCount: 1})

	event := readEvent(t, conn)
	assert.Equal(t, "new_message", event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, "hola", event.Message.Content)
	require.NotNil(t, event.Conversation)
	assert.Equal(t, 1, event.Conversation.UnreadCount)
}

func TestNotifyTargetsOnlyOwner(t *testing.T) {
	hub, _, url := setupHub(t)

	owner := dial(t, url)
	authenticate(t, owner, 1)
	other := dial(t, url)
	authenticate(t, other, 2)
	waitForConnections(t, hub, 1, 1)
	waitForConnections(t, hub, 2, 1)

	hub.NotifyNewMessage(1, &models.Message{ID: 1, Content: "privado"}, nil, nil)

	event := readEvent(t, owner)
	assert.Equal(t, "new_message", event.Type)

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "non-owner must not receive the push")
}

func TestMultipleConnectionsPerUser(t *testing.T) {
	hub, _, url := setupHub(t)

	first := dial(t, url)
	authenticate(t, first, 4)
	second := dial(t, url)
	authenticate(t, second, 4)
	waitForConnections(t, hub, 4, 2)

	hub.NotifyNewMessage(4, &models.Message{ID: 7, Content: "fanout"}, nil, nil)

	assert.Equal(t, "new_message", readEvent(t, first).Type)
	assert.Equal(t, "new_message", readEvent(t, second).Type)
}

func TestSendMessageFrame(t *testing.T) {
	hub, sender, url := setupHub(t)

	t.Run("requires authentication", func(t *testing.T) {
		conn := dial(t, url)
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"type": "send_message", "conversation_id": 1, "contact_id": 2, "content": "x",
		}))
		event := readEvent(t, conn)
		assert.Equal(t, "error", event.Type)
		assert.Zero(t, sender.callCount())
	})

	t.Run("routed to sender with user identity", func(t *testing.T) {
		conn := dial(t, url)
		authenticate(t, conn, 11)
		waitForConnections(t, hub, 11, 1)

		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"type": "send_message", "conversation_id": 3, "contact_id": 8, "content": "desde el socket",
		}))

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) && sender.callCount() == 0 {
			time.Sleep(10 * time.Millisecond)
		}
		require.Equal(t, 1, sender.callCount())
		call := sender.call(0)
		assert.Equal(t, uint(11), call.UserID)
		assert.Equal(t, uint(3), call.ConversationID)
		assert.Equal(t, uint(8), call.ContactID)
		assert.Equal(t, "desde el socket", call.Content)
	})
}

func TestDisconnectRemovesConnection(t *testing.T) {
	hub, _, url := setupHub(t)

	conn := dial(t, url)
	authenticate(t, conn, 6)
	waitForConnections(t, hub, 6, 1)

	conn.Close()
	waitForConnections(t, hub, 6, 0)
}
