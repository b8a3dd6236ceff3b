package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"whatsapp-backend/internal/auth"
	"whatsapp-backend/internal/config"
	"whatsapp-backend/internal/database"
	"whatsapp-backend/internal/models"
	"whatsapp-backend/internal/pipeline"
	"whatsapp-backend/internal/whatsapp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeGateway struct {
	sent     []string
	failSend bool
	seq      int
}

func (f *fakeGateway) SendText(to, body string) (*whatsapp.SendResult, error) {
	if f.failSend {
		return nil, fmt.Errorf("provider rejected message")
	}
	f.seq++
	f.sent = append(f.sent, body)
	return &whatsapp.SendResult{MessageID: fmt.Sprintf("wamid.api-%d", f.seq)}, nil
}

func (f *fakeGateway) SendImage(to, imageURL, caption string) (*whatsapp.SendResult, error) {
	return f.SendText(to, imageURL)
}

func (f *fakeGateway) MediaURL(mediaID string) string { return "" }

type testEnv struct {
	db      *gorm.DB
	router  *gin.Engine
	cfg     *config.Config
	gateway *fakeGateway
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		JWTSecret:   "api-test-secret",
		MasterToken: "master-secret",
	}

	gw := &fakeGateway{}
	p := pipeline.New(db, gw)

	authHandler := NewAuthHandler(db, cfg)
	accountHandler := NewAccountHandler(db)
	contactHandler := NewContactHandler(db)
	conversationHandler := NewConversationHandler(db, p)
	chatbotHandler := NewChatbotHandler(db)
	analyticsHandler := NewAnalyticsHandler(db)

	r := gin.New()
	r.POST("/api/auth/register", authHandler.Register)
	r.POST("/api/auth/login", authHandler.Login)
	r.POST("/api/auth/google", authHandler.GoogleLogin)
	r.POST("/api/auth/master", authHandler.MasterLogin)

	api := r.Group("/api", auth.RequireAuth(cfg.JWTSecret))
	{
		api.GET("/auth/me", authHandler.Me)
		api.GET("/users", auth.RequireRole(models.RoleAdmin, models.RoleCEO), authHandler.ListUsers)

		api.GET("/accounts", accountHandler.List)
		api.POST("/accounts", accountHandler.Create)
		api.DELETE("/accounts/:id", accountHandler.Delete)

		api.GET("/contacts", contactHandler.List)
		api.POST("/contacts", contactHandler.Create)
		api.PUT("/contacts/:id", contactHandler.Update)
		api.DELETE("/contacts/:id", contactHandler.Delete)

		api.GET("/conversations", conversationHandler.List)
		api.GET("/conversations/:id", conversationHandler.Get)
		api.POST("/conversations/:id/read", conversationHandler.MarkRead)
		api.POST("/conversations/:id/messages", conversationHandler.SendMessage)

		api.GET("/chatbots", chatbotHandler.List)
		api.POST("/chatbots", chatbotHandler.Create)
		api.PUT("/chatbots/:id", chatbotHandler.Toggle)
		api.DELETE("/chatbots/:id", chatbotHandler.Delete)
		api.GET("/chatbots/:id/analytics", chatbotHandler.Analytics)

		api.GET("/analytics", analyticsHandler.Overview)
	}

	return &testEnv{db: db, router: r, cfg: cfg, gateway: gw}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// registerUser creates an account through the API and returns its token.
func (e *testEnv) registerUser(t *testing.T, email string) (string, uint) {
	t.Helper()
	w := e.request(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	token := body["token"].(string)
	user := body["user"].(map[string]interface{})
	return token, uint(user["id"].(float64))
}

func TestRegisterAndLogin(t *testing.T) {
	e := setup(t)

	token, _ := e.registerUser(t, "ana@example.com")
	require.NotEmpty(t, token)

	t.Run("duplicate email conflicts", func(t *testing.T) {
		w := e.request(t, http.MethodPost, "/api/auth/register", "", gin.H{
			"email":    "ana@example.com",
			"password": "another123",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("login with correct password", func(t *testing.T) {
		w := e.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
			"email":    "ana@example.com",
			"password": "secret123",
		})
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.NotEmpty(t, body["token"])

		user := body["user"].(map[string]interface{})
		assert.NotNil(t, user["last_login_at"])
		_, hasHash := user["password_hash"]
		assert.False(t, hasHash)
	})

	t.Run("login with wrong password", func(t *testing.T) {
		w := e.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
			"email":    "ana@example.com",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("deactivated account rejected", func(t *testing.T) {
		require.NoError(t, e.db.Model(&models.User{}).
			Where("email = ?", "ana@example.com").
			Update("active", false).Error)
		w := e.request(t, http.MethodPost, "/api/auth/login", "", gin.H{
			"email":    "ana@example.com",
			"password": "secret123",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestGoogleLogin(t *testing.T) {
	e := setup(t)

	w := e.request(t, http.MethodPost, "/api/auth/google", "", gin.H{
		"email": "fed@example.com",
		"name":  "Fed User",
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotEmpty(t, body["token"])

	var user models.User
	require.NoError(t, e.db.Where("email = ?", "fed@example.com").First(&user).Error)
	assert.Equal(t, "google", user.Provider)
	assert.Equal(t, models.RoleUser, user.Role)

	// Second login reuses the same account.
	w = e.request(t, http.MethodPost, "/api/auth/google", "", gin.H{"email": "fed@example.com"})
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	e.db.Model(&models.User{}).Where("email = ?", "fed@example.com").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestMasterLogin(t *testing.T) {
	e := setup(t)

	t.Run("wrong token rejected", func(t *testing.T) {
		w := e.request(t, http.MethodPost, "/api/auth/master", "", gin.H{
			"token": "nope",
			"email": "boss@example.com",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("creates ceo on first use", func(t *testing.T) {
		w := e.request(t, http.MethodPost, "/api/auth/master", "", gin.H{
			"token": "master-secret",
			"email": "boss@example.com",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var user models.User
		require.NoError(t, e.db.Where("email = ?", "boss@example.com").First(&user).Error)
		assert.Equal(t, models.RoleCEO, user.Role)
	})

	t.Run("promotes an existing user", func(t *testing.T) {
		e.registerUser(t, "worker@example.com")
		w := e.request(t, http.MethodPost, "/api/auth/master", "", gin.H{
			"token": "master-secret",
			"email": "worker@example.com",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var user models.User
		require.NoError(t, e.db.Where("email = ?", "worker@example.com").First(&user).Error)
		assert.Equal(t, models.RoleCEO, user.Role)
	})

	t.Run("empty configured token never matches", func(t *testing.T) {
		e2 := setup(t)
		e2.cfg.MasterToken = ""
		w := e2.request(t, http.MethodPost, "/api/auth/master", "", gin.H{
			"token": "",
			"email": "x@example.com",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = e2.request(t, http.MethodPost, "/api/auth/master", "", gin.H{
			"token": "anything",
			"email": "x@example.com",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRoleGating(t *testing.T) {
	e := setup(t)
	userToken, _ := e.registerUser(t, "plain@example.com")

	w := e.request(t, http.MethodGet, "/api/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.request(t, http.MethodPost, "/api/auth/master", "", gin.H{
		"token": "master-secret",
		"email": "ceo@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
	ceoToken := decode(t, w)["token"].(string)

	w = e.request(t, http.MethodGet, "/api/users", ceoToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.request(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAccounts(t *testing.T) {
	e := setup(t)
	token, _ := e.registerUser(t, "owner@example.com")

	w := e.request(t, http.MethodPost, "/api/accounts", token, gin.H{"phone_number_id": "555000"})
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("duplicate phone number id conflicts", func(t *testing.T) {
		w := e.request(t, http.MethodPost, "/api/accounts", token, gin.H{"phone_number_id": "555000"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("list is owner scoped", func(t *testing.T) {
		otherToken, _ := e.registerUser(t, "other@example.com")
		w := e.request(t, http.MethodGet, "/api/accounts", otherToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var accounts []models.WhatsAppAccount
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accounts))
		assert.Empty(t, accounts)
	})

	t.Run("delete", func(t *testing.T) {
		var account models.WhatsAppAccount
		require.NoError(t, e.db.Where("phone_number_id = ?", "555000").First(&account).Error)
		w := e.request(t, http.MethodDelete, fmt.Sprintf("/api/accounts/%d", account.ID), token, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = e.request(t, http.MethodDelete, fmt.Sprintf("/api/accounts/%d", account.ID), token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestContacts(t *testing.T) {
	e := setup(t)
	token, userID := e.registerUser(t, "owner@example.com")

	w := e.request(t, http.MethodPost, "/api/contacts", token, gin.H{
		"phone": "5215550001111",
		"name":  "Ana",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("same phone upserts to existing row", func(t *testing.T) {
		w := e.request(t, http.MethodPost, "/api/contacts", token, gin.H{
			"phone": "5215550001111",
			"name":  "Ana García",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var count int64
		e.db.Model(&models.Contact{}).Where("user_id = ?", userID).Count(&count)
		assert.Equal(t, int64(1), count)

		var contact models.Contact
		require.NoError(t, e.db.Where("user_id = ?", userID).First(&contact).Error)
		assert.Equal(t, "Ana García", contact.Name)
	})

	t.Run("rename", func(t *testing.T) {
		var contact models.Contact
		require.NoError(t, e.db.Where("user_id = ?", userID).First(&contact).Error)

		w := e.request(t, http.MethodPut, fmt.Sprintf("/api/contacts/%d", contact.ID), token, gin.H{"name": "Ana G."})
		require.Equal(t, http.StatusOK, w.Code)

		require.NoError(t, e.db.First(&contact, contact.ID).Error)
		assert.Equal(t, "Ana G.", contact.Name)
	})

	t.Run("cannot touch another user's contact", func(t *testing.T) {
		otherToken, _ := e.registerUser(t, "other@example.com")
		var contact models.Contact
		require.NoError(t, e.db.Where("user_id = ?", userID).First(&contact).Error)

		w := e.request(t, http.MethodPut, fmt.Sprintf("/api/contacts/%d", contact.ID), otherToken, gin.H{"name": "hijack"})
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = e.request(t, http.MethodDelete, fmt.Sprintf("/api/contacts/%d", contact.ID), otherToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// seedThread creates a contact with a conversation carrying unread messages.
func seedThread(t *testing.T, db *gorm.DB, userID uint, unread int) (*models.Contact, *models.Conversation) {
	t.Helper()
	contact := models.Contact{UserID: userID, Phone: "5215550002222", Name: "Luis"}
	require.NoError(t, db.Create(&contact).Error)
	conv := models.Conversation{ContactID: contact.ID, UserID: userID, UnreadCount: unread}
	require.NoError(t, db.Create(&conv).Error)
	msg := models.Message{
		ConversationID:    conv.ID,
		ContactID:         contact.ID,
		Direction:         models.DirectionIn,
		Type:              "text",
		Content:           "hola",
		ProviderMessageID: uuid.NewString(),
		Status:            "received",
	}
	require.NoError(t, db.Create(&msg).Error)
	return &contact, &conv
}

func TestConversations(t *testing.T) {
	e := setup(t)
	token, userID := e.registerUser(t, "owner@example.com")
	contact, conv := seedThread(t, e.db, userID, 3)

	t.Run("list includes contact", func(t *testing.T) {
		w := e.request(t, http.MethodGet, "/api/conversations", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var views []conversationView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
		require.Len(t, views, 1)
		assert.Equal(t, conv.ID, views[0].ID)
		assert.Equal(t, "Luis", views[0].Contact.Name)
		assert.Equal(t, 3, views[0].UnreadCount)
	})

	t.Run("get returns thread with messages", func(t *testing.T) {
		w := e.request(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d", conv.ID), token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		messages := body["messages"].([]interface{})
		assert.Len(t, messages, 1)
	})

	t.Run("mark read resets the counter", func(t *testing.T) {
		w := e.request(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/read", conv.ID), token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var fresh models.Conversation
		require.NoError(t, e.db.First(&fresh, conv.ID).Error)
		assert.Equal(t, 0, fresh.UnreadCount)
	})

	t.Run("send message goes through the gateway", func(t *testing.T) {
		w := e.request(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", conv.ID), token, gin.H{
			"content": "gracias por escribir",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		require.Len(t, e.gateway.sent, 1)
		assert.Equal(t, "gracias por escribir", e.gateway.sent[0])

		var msg models.Message
		require.NoError(t, e.db.Where("direction = ?", models.DirectionOut).First(&msg).Error)
		assert.Equal(t, contact.ID, msg.ContactID)
		assert.Equal(t, "sent", msg.Status)
	})

	t.Run("gateway failure surfaces as 502 and persists nothing", func(t *testing.T) {
		e.gateway.failSend = true
		defer func() { e.gateway.failSend = false }()

		var before int64
		e.db.Model(&models.Message{}).Count(&before)

		w := e.request(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", conv.ID), token, gin.H{
			"content": "no llega",
		})
		assert.Equal(t, http.StatusBadGateway, w.Code)

		var after int64
		e.db.Model(&models.Message{}).Count(&after)
		assert.Equal(t, before, after)
	})

	t.Run("another user's conversation is invisible", func(t *testing.T) {
		otherToken, _ := e.registerUser(t, "other@example.com")
		w := e.request(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d", conv.ID), otherToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = e.request(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/messages", conv.ID), otherToken, gin.H{
			"content": "intrusion",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestChatbots(t *testing.T) {
	e := setup(t)
	token, userID := e.registerUser(t, "owner@example.com")

	t.Run("unknown template rejected", func(t *testing.T) {
		w := e.request(t, http.MethodPost, "/api/chatbots", token, gin.H{"template": "astrology"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w := e.request(t, http.MethodPost, "/api/chatbots", token, gin.H{"template": "ecommerce"})
	require.Equal(t, http.StatusCreated, w.Code)

	var chatbot models.Chatbot
	require.NoError(t, e.db.Where("user_id = ?", userID).First(&chatbot).Error)
	assert.True(t, chatbot.IsActive)

	t.Run("toggle off", func(t *testing.T) {
		w := e.request(t, http.MethodPut, fmt.Sprintf("/api/chatbots/%d", chatbot.ID), token, gin.H{"is_active": false})
		require.Equal(t, http.StatusOK, w.Code)

		require.NoError(t, e.db.First(&chatbot, chatbot.ID).Error)
		assert.False(t, chatbot.IsActive)
	})

	t.Run("analytics aggregates interactions", func(t *testing.T) {
		interactions := []models.BotInteraction{
			{ChatbotID: chatbot.ID, Trigger: "precio", Response: "planes", Escalated: false, ResponseTimeMs: 10},
			{ChatbotID: chatbot.ID, Trigger: "humano", Response: "agente", Escalated: true, ResponseTimeMs: 30},
		}
		for i := range interactions {
			require.NoError(t, e.db.Create(&interactions[i]).Error)
		}

		w := e.request(t, http.MethodGet, fmt.Sprintf("/api/chatbots/%d/analytics", chatbot.ID), token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, float64(2), body["total_interactions"])
		assert.Equal(t, float64(1), body["escalated"])
		assert.Equal(t, float64(20), body["avg_response_time_ms"])
	})

	t.Run("delete", func(t *testing.T) {
		w := e.request(t, http.MethodDelete, fmt.Sprintf("/api/chatbots/%d", chatbot.ID), token, nil)
		assert.Equal(t, http.StatusOK, w.Code)

		w = e.request(t, http.MethodGet, fmt.Sprintf("/api/chatbots/%d/analytics", chatbot.ID), token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAnalyticsOverview(t *testing.T) {
	e := setup(t)
	token, userID := e.registerUser(t, "owner@example.com")
	contact, conv := seedThread(t, e.db, userID, 2)

	out := models.Message{
		ConversationID:    conv.ID,
		ContactID:         contact.ID,
		Direction:         models.DirectionOut,
		Type:              "text",
		Content:           "respuesta",
		ProviderMessageID: uuid.NewString(),
		Status:            "sent",
		IsFromBot:         true,
	}
	require.NoError(t, e.db.Create(&out).Error)

	w := e.request(t, http.MethodGet, "/api/analytics", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)

	assert.Equal(t, float64(1), body["contacts"])
	assert.Equal(t, float64(1), body["conversations"])
	assert.Equal(t, float64(2), body["unread"])
	assert.Equal(t, float64(1), body["messages_inbound"])
	assert.Equal(t, float64(1), body["messages_outbound"])
	assert.Equal(t, float64(1), body["messages_from_bot"])
}
