package api

import (
	"net/http"

	"whatsapp-backend/internal/auth"
	"whatsapp-backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AnalyticsHandler struct {
	db *gorm.DB
}

func NewAnalyticsHandler(db *gorm.DB) *AnalyticsHandler {
	return &AnalyticsHandler{db: db}
}

// Overview reports message volume by direction, the bot's share of outbound
// traffic, and contact/conversation totals for the authenticated user.
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	userID := auth.UserID(c)

	var contacts, conversations int64
	h.db.Model(&models.Contact{}).Where("user_id = ?", userID).Count(&contacts)
	h.db.Model(&models.Conversation{}).Where("user_id = ?", userID).Count(&conversations)

	var unread int64
	h.db.Model(&models.Conversation{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(unread_count), 0)").
		Scan(&unread)

	msgs := h.db.Model(&models.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("conversations.user_id = ?", userID)

	var inbound, outbound, fromBot int64
	msgs.Session(&gorm.Session{}).Where("messages.direction = ?", models.DirectionIn).Count(&inbound)
	msgs.Session(&gorm.Session{}).Where("messages.direction = ?", models.DirectionOut).Count(&outbound)
	msgs.Session(&gorm.Session{}).Where("messages.is_from_bot = ?", true).Count(&fromBot)

	c.JSON(http.StatusOK, gin.H{
		"contacts":          contacts,
		"conversations":     conversations,
		"unread":            unread,
		"messages_inbound":  inbound,
		"messages_outbound": outbound,
		"messages_from_bot": fromBot,
	})
}
