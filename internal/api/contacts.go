package api

import (
	"net/http"

	"whatsapp-backend/internal/auth"
	"whatsapp-backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContactHandler struct {
	db *gorm.DB
}

func NewContactHandler(db *gorm.DB) *ContactHandler {
	return &ContactHandler{db: db}
}

type createContactRequest struct {
	Phone     string `json:"phone" binding:"required"`
	Name      string `json:"name"`
	AccountID uint   `json:"account_id"`
}

// Create upserts on (user_id, phone) so that manually adding a contact that
// already messaged the business returns the existing row.
func (h *ContactHandler) Create(c *gin.Context) {
	var req createContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := auth.UserID(c)
	contact := models.Contact{
		UserID:    userID,
		AccountID: req.AccountID,
		Phone:     req.Phone,
		Name:      req.Name,
	}
	if err := h.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&contact).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create contact"})
		return
	}
	if contact.ID == 0 {
		if err := h.db.Where("user_id = ? AND phone = ?", userID, req.Phone).First(&contact).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create contact"})
			return
		}
		if req.Name != "" && contact.Name != req.Name {
			h.db.Model(&contact).Update("name", req.Name)
			contact.Name = req.Name
		}
		c.JSON(http.StatusOK, contact)
		return
	}
	c.JSON(http.StatusCreated, contact)
}

func (h *ContactHandler) List(c *gin.Context) {
	var contacts []models.Contact
	if err := h.db.Where("user_id = ?", auth.UserID(c)).
		Order("last_message_at DESC NULLS LAST").
		Find(&contacts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list contacts"})
		return
	}
	c.JSON(http.StatusOK, contacts)
}

type updateContactRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *ContactHandler) Update(c *gin.Context) {
	var req updateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var contact models.Contact
	if err := h.db.Where("id = ? AND user_id = ?", c.Param("id"), auth.UserID(c)).
		First(&contact).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
		return
	}
	if err := h.db.Model(&contact).Update("name", req.Name).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update contact"})
		return
	}
	contact.Name = req.Name
	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) Delete(c *gin.Context) {
	res := h.db.Where("id = ? AND user_id = ?", c.Param("id"), auth.UserID(c)).
		Delete(&models.Contact{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete contact"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "contact deleted"})
}
