package api

import (
	"errors"
	"net/http"

	"whatsapp-backend/internal/auth"
	"whatsapp-backend/internal/models"
	"whatsapp-backend/internal/pipeline"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ConversationHandler struct {
	db       *gorm.DB
	pipeline *pipeline.Pipeline
}

func NewConversationHandler(db *gorm.DB, p *pipeline.Pipeline) *ConversationHandler {
	return &ConversationHandler{db: db, pipeline: p}
}

// conversationView is the list shape: the thread plus its contact, so the
// inbox can render without a second round trip.
type conversationView struct {
	models.Conversation
	Contact models.Contact `json:"contact"`
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID := auth.UserID(c)

	var conversations []models.Conversation
	if err := h.db.Where("user_id = ?", userID).
		Order("last_message_at DESC NULLS LAST").
		Find(&conversations).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	views := make([]conversationView, 0, len(conversations))
	for _, conv := range conversations {
		var contact models.Contact
		h.db.First(&contact, conv.ContactID)
		views = append(views, conversationView{Conversation: conv, Contact: contact})
	}
	c.JSON(http.StatusOK, views)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	conv, ok := h.ownedConversation(c)
	if !ok {
		return
	}

	var contact models.Contact
	h.db.First(&contact, conv.ContactID)

	var messages []models.Message
	if err := h.db.Where("conversation_id = ?", conv.ID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": conv,
		"contact":      contact,
		"messages":     messages,
	})
}

// MarkRead resets the unread counter after the operator opens the thread.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conv, ok := h.ownedConversation(c)
	if !ok {
		return
	}
	if err := h.db.Model(conv).Update("unread_count", 0).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}
	conv.UnreadCount = 0
	c.JSON(http.StatusOK, conv)
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
	Type    string `json:"type"`
}

func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, ok := h.ownedConversation(c)
	if !ok {
		return
	}

	msg, err := h.pipeline.SendForUser(auth.UserID(c), conv.ID, conv.ContactID, req.Content, req.Type)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotOwner) {
			c.JSON(http.StatusForbidden, gin.H{"error": "conversation not owned by user"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send message"})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) ownedConversation(c *gin.Context) (*models.Conversation, bool) {
	var conv models.Conversation
	if err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), auth.UserID(c)).
		First(&conv).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return nil, false
	}
	return &conv, true
}
