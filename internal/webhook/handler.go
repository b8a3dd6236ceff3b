package webhook

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"whatsapp-backend/internal/models"
	"whatsapp-backend/internal/pipeline"
	"whatsapp-backend/internal/whatsapp"
	pkgmodels "whatsapp-backend/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Handler struct {
	db       *gorm.DB
	client   *whatsapp.Client
	pipeline *pipeline.Pipeline
}

func NewHandler(db *gorm.DB, client *whatsapp.Client, p *pipeline.Pipeline) *Handler {
	return &Handler{
		db:       db,
		client:   client,
		pipeline: p,
	}
}

// Verify answers the provider's subscription handshake: echo the challenge
// iff mode and token check out.
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	if h.client.VerifyWebhook(mode, token) {
		log.Info().Msg("webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// HandleEvent stores the raw payload, feeds each message to the ingestion
// pipeline and applies delivery status updates. The provider only cares
// about the 200; processing errors are logged, not returned.
func (h *Handler) HandleEvent(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	var payload pkgmodels.WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Warn().Err(err).Msg("malformed webhook payload")
		c.Status(http.StatusBadRequest)
		return
	}

	event := models.WebhookEvent{
		ID:      uuid.NewString(),
		Payload: string(raw),
	}
	if err := h.db.Create(&event).Error; err != nil {
		log.Error().Err(err).Msg("failed to store webhook event")
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			h.processChange(change.Value)
		}
	}

	now := time.Now()
	h.db.Model(&models.WebhookEvent{}).Where("id = ?", event.ID).Updates(map[string]interface{}{
		"processed":    true,
		"processed_at": now,
	})

	c.Status(http.StatusOK)
}

func (h *Handler) processChange(value pkgmodels.Value) {
	for _, status := range value.Statuses {
		h.pipeline.UpdateMessageStatus(status.ID, status.Status)
	}

	if len(value.Messages) == 0 {
		return
	}

	var account models.WhatsAppAccount
	err := h.db.Where("phone_number_id = ?", value.Metadata.PhoneNumberID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("phone_number_id", value.Metadata.PhoneNumberID).Msg("webhook for unknown account")
		} else {
			log.Error().Err(err).Msg("account lookup failed")
		}
		return
	}

	for _, msg := range value.Messages {
		if _, err := h.pipeline.ProcessIncoming(account.ID, msg, senderName(value.Contacts, msg.From)); err != nil {
			log.Error().Err(err).Str("from", msg.From).Msg("failed to process inbound message")
		}
	}
}

func senderName(contacts []pkgmodels.WebhookContact, waID string) string {
	for _, contact := range contacts {
		if contact.WaID == waID {
			return contact.Profile.Name
		}
	}
	return ""
}
