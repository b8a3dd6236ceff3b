package api

import (
	"net/http"

	"whatsapp-backend/internal/auth"
	"whatsapp-backend/internal/bot"
	"whatsapp-backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ChatbotHandler struct {
	db *gorm.DB
}

func NewChatbotHandler(db *gorm.DB) *ChatbotHandler {
	return &ChatbotHandler{db: db}
}

type createChatbotRequest struct {
	Template string `json:"template" binding:"required"`
}

func (h *ChatbotHandler) Create(c *gin.Context) {
	var req createChatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tpl, err := bot.ParseTemplate(req.Template)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chatbot := models.Chatbot{
		UserID:   auth.UserID(c),
		Template: string(tpl),
		IsActive: true,
	}
	if err := h.db.Create(&chatbot).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create chatbot"})
		return
	}
	c.JSON(http.StatusCreated, chatbot)
}

func (h *ChatbotHandler) List(c *gin.Context) {
	var chatbots []models.Chatbot
	if err := h.db.Where("user_id = ?", auth.UserID(c)).Find(&chatbots).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chatbots"})
		return
	}
	c.JSON(http.StatusOK, chatbots)
}

type toggleChatbotRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func (h *ChatbotHandler) Toggle(c *gin.Context) {
	var req toggleChatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chatbot, ok := h.ownedChatbot(c)
	if !ok {
		return
	}
	if err := h.db.Model(chatbot).Update("is_active", *req.IsActive).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update chatbot"})
		return
	}
	chatbot.IsActive = *req.IsActive
	c.JSON(http.StatusOK, chatbot)
}

func (h *ChatbotHandler) Delete(c *gin.Context) {
	res := h.db.Where("id = ? AND user_id = ?", c.Param("id"), auth.UserID(c)).
		Delete(&models.Chatbot{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete chatbot"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "chatbot not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "chatbot deleted"})
}

// Analytics aggregates the interaction log for one bot: volume, escalation
// count and mean response time.
func (h *ChatbotHandler) Analytics(c *gin.Context) {
	chatbot, ok := h.ownedChatbot(c)
	if !ok {
		return
	}

	var stats struct {
		Total     int64    `json:"total_interactions"`
		Escalated int64    `json:"escalated"`
		AvgMs     *float64 `json:"avg_response_time_ms"`
	}
	base := h.db.Model(&models.BotInteraction{}).Where("chatbot_id = ?", chatbot.ID)
	if err := base.Count(&stats.Total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate interactions"})
		return
	}
	h.db.Model(&models.BotInteraction{}).
		Where("chatbot_id = ? AND escalated = ?", chatbot.ID, true).
		Count(&stats.Escalated)
	h.db.Model(&models.BotInteraction{}).
		Where("chatbot_id = ?", chatbot.ID).
		Select("AVG(response_time_ms)").
		Scan(&stats.AvgMs)

	c.JSON(http.StatusOK, gin.H{
		"chatbot_id":           chatbot.ID,
		"template":             chatbot.Template,
		"is_active":            chatbot.IsActive,
		"total_interactions":   stats.Total,
		"escalated":            stats.Escalated,
		"avg_response_time_ms": stats.AvgMs,
	})
}

func (h *ChatbotHandler) ownedChatbot(c *gin.Context) (*models.Chatbot, bool) {
	var chatbot models.Chatbot
	if err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), auth.UserID(c)).
		First(&chatbot).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "chatbot not found"})
		return nil, false
	}
	return &chatbot, true
}
