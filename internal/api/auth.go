package api

import (
	"errors"
	"net/http"
	"time"

	"whatsapp-backend/internal/auth"
	"whatsapp-backend/internal/config"
	"whatsapp-backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type AuthHandler struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"phone"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing models.User
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	user := models.User{
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Provider:     "local",
		Active:       true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		log.Error().Err(err).Msg("user create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	h.issueSession(c, &user, http.StatusCreated)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !user.Active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account deactivated"})
		return
	}
	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	h.issueSession(c, &user, http.StatusOK)
}

type googleLoginRequest struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
}

// GoogleLogin is the federated-identity bootstrap: a provider-asserted email
// creates the account on first sight.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	var req googleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	err := h.db.Where("email = ?", req.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			Email:    req.Email,
			Role:     models.RoleUser,
			Provider: "google",
			Active:   true,
		}
		if err := h.db.Create(&user).Error; err != nil {
			log.Error().Err(err).Msg("google user create failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
			return
		}
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if !user.Active {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account deactivated"})
		return
	}

	h.issueSession(c, &user, http.StatusOK)
}

type masterLoginRequest struct {
	Token string `json:"token" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// MasterLogin is the privileged bootstrap: the shared MASTER_TOKEN creates
// or promotes the named account to the ceo role.
func (h *AuthHandler) MasterLogin(c *gin.Context) {
	var req masterLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.cfg.MasterToken == "" || req.Token != h.cfg.MasterToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid master token"})
		return
	}

	var user models.User
	err := h.db.Where("email = ?", req.Email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Email:    req.Email,
			Role:     models.RoleCEO,
			Provider: "master",
			Active:   true,
		}
		if err := h.db.Create(&user).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
			return
		}
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	default:
		if user.Role != models.RoleCEO {
			if err := h.db.Model(&user).Update("role", models.RoleCEO).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
				return
			}
			user.Role = models.RoleCEO
		}
	}

	h.issueSession(c, &user, http.StatusOK)
}

func (h *AuthHandler) Me(c *gin.Context) {
	var user models.User
	if err := h.db.First(&user, auth.UserID(c)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListUsers is admin/ceo only (gated in the route wiring).
func (h *AuthHandler) ListUsers(c *gin.Context) {
	var users []models.User
	if err := h.db.Order("created_at DESC").Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// issueSession updates the last-login timestamp and returns the token plus
// the user record. Every successful login path goes through here.
func (h *AuthHandler) issueSession(c *gin.Context, user *models.User, status int) {
	now := time.Now()
	if err := h.db.Model(user).Update("last_login_at", now).Error; err != nil {
		log.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to update last login")
	}
	user.LastLoginAt = &now

	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(status, gin.H{"token": token, "user": user})
}
