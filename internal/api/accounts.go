package api

import (
	"net/http"

	"whatsapp-backend/internal/auth"
	"whatsapp-backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AccountHandler struct {
	db *gorm.DB
}

func NewAccountHandler(db *gorm.DB) *AccountHandler {
	return &AccountHandler{db: db}
}

type createAccountRequest struct {
	PhoneNumberID string `json:"phone_number_id" binding:"required"`
}

func (h *AccountHandler) Create(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing models.WhatsAppAccount
	if err := h.db.Where("phone_number_id = ?", req.PhoneNumberID).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "phone number already registered"})
		return
	}

	account := models.WhatsAppAccount{
		UserID:        auth.UserID(c),
		PhoneNumberID: req.PhoneNumberID,
	}
	if err := h.db.Create(&account).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *AccountHandler) List(c *gin.Context) {
	var accounts []models.WhatsAppAccount
	if err := h.db.Where("user_id = ?", auth.UserID(c)).Find(&accounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list accounts"})
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (h *AccountHandler) Delete(c *gin.Context) {
	res := h.db.Where("id = ? AND user_id = ?", c.Param("id"), auth.UserID(c)).
		Delete(&models.WhatsAppAccount{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete account"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
}
