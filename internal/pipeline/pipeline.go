package pipeline

import (
	"errors"
	"fmt"
	"time"

	"whatsapp-backend/internal/bot"
	"whatsapp-backend/internal/models"
	"whatsapp-backend/internal/whatsapp"
	pkgmodels "whatsapp-backend/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gateway is the outbound side of the Business API used by the pipeline.
// *whatsapp.Client implements it; tests substitute fakes.
type Gateway interface {
	SendText(to, body string) (*whatsapp.SendResult, error)
	SendImage(to, imageURL, caption string) (*whatsapp.SendResult, error)
	MediaURL(mediaID string) string
}

// Notifier pushes real-time events to a user's open connections.
type Notifier interface {
	NotifyNewMessage(userID uint, msg *models.Message, contact *models.Contact, conv *models.Conversation)
}

// ErrNotOwner is returned when a caller addresses a conversation that does
// not belong to them.
var ErrNotOwner = errors.New("conversation does not belong to user")

// Pipeline resolves contact and conversation identity for inbound webhook
// messages, persists message records, dispatches the chatbot and relays
// outbound sends.
type Pipeline struct {
	db       *gorm.DB
	gateway  Gateway
	notifier Notifier
}

func New(db *gorm.DB, gateway Gateway) *Pipeline {
	return &Pipeline{db: db, gateway: gateway}
}

// SetNotifier wires the real-time hub after construction (the hub also
// needs the pipeline for client-originated sends).
func (p *Pipeline) SetNotifier(n Notifier) {
	p.notifier = n
}

// ProcessIncoming handles one inbound webhook message for the given
// account: contact and conversation are resolved by upsert, the message is
// stored exactly once per provider message id, the unread counter moves,
// the owner's chatbot may answer and the owner's sockets are notified.
// Returns nil without error for duplicate deliveries.
func (p *Pipeline) ProcessIncoming(accountID uint, msg pkgmodels.InboundMessage, senderName string) (*models.Message, error) {
	var account models.WhatsAppAccount
	if err := p.db.First(&account, accountID).Error; err != nil {
		return nil, fmt.Errorf("account %d: %w", accountID, err)
	}

	contact, err := p.resolveContact(&account, msg.From, senderName)
	if err != nil {
		return nil, err
	}

	conv, err := p.resolveConversation(contact)
	if err != nil {
		return nil, err
	}

	content, mediaURL := p.extractContent(msg)

	stored := models.Message{
		ConversationID:    conv.ID,
		ContactID:         contact.ID,
		Direction:         models.DirectionIn,
		Type:              msg.Type,
		Content:           content,
		MediaURL:          mediaURL,
		ProviderMessageID: msg.ID,
		Status:            "received",
	}
	res := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_message_id"}},
		DoNothing: true,
	}).Create(&stored)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Redelivered webhook payload; the first delivery already did the work.
		log.Debug().Str("provider_message_id", msg.ID).Msg("duplicate inbound message ignored")
		return nil, nil
	}

	now := time.Now()
	if err := p.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]interface{}{
		"unread_count":    gorm.Expr("unread_count + 1"),
		"last_message_at": now,
	}).Error; err != nil {
		log.Error().Err(err).Uint("conversation_id", conv.ID).Msg("failed to bump unread counter")
	}
	p.db.Model(&models.Contact{}).Where("id = ?", contact.ID).Update("last_message_at", now)

	log.Info().
		Str("from", msg.From).
		Str("type", msg.Type).
		Uint("conversation_id", conv.ID).
		Msg("inbound message stored")

	p.notify(account.UserID, &stored, contact, conv)

	if msg.Type == "text" {
		p.dispatchBot(account.UserID, contact, conv, &stored)
	}

	return &stored, nil
}

// ProcessOutgoing sends a message through the gateway and persists it. A
// failed send aborts before persistence: nothing is stored and the error is
// surfaced to the caller.
func (p *Pipeline) ProcessOutgoing(conversationID, contactID uint, content, msgType string) (*models.Message, error) {
	var conv models.Conversation
	if err := p.db.First(&conv, conversationID).Error; err != nil {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, err)
	}

	var contact models.Contact
	if err := p.db.First(&contact, contactID).Error; err != nil {
		return nil, fmt.Errorf("contact %d: %w", contactID, err)
	}

	var result *whatsapp.SendResult
	var err error
	switch msgType {
	case "image":
		result, err = p.gateway.SendImage(contact.Phone, content, "")
	default:
		msgType = "text"
		result, err = p.gateway.SendText(contact.Phone, content)
	}
	if err != nil {
		return nil, fmt.Errorf("gateway send: %w", err)
	}

	providerID := result.MessageID
	if providerID == "" {
		providerID = uuid.NewString()
	}

	stored := models.Message{
		ConversationID:    conv.ID,
		ContactID:         contact.ID,
		Direction:         models.DirectionOut,
		Type:              msgType,
		Content:           content,
		ProviderMessageID: providerID,
		Status:            "sent",
	}
	if err := p.db.Create(&stored).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	p.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).Update("last_message_at", now)

	p.notify(conv.UserID, &stored, &contact, &conv)
	return &stored, nil
}

// SendForUser is ProcessOutgoing with an ownership check, used by the route
// layer and the WebSocket send_message frame.
func (p *Pipeline) SendForUser(userID, conversationID, contactID uint, content, msgType string) (*models.Message, error) {
	var conv models.Conversation
	if err := p.db.First(&conv, conversationID).Error; err != nil {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, err)
	}
	if conv.UserID != userID {
		return nil, ErrNotOwner
	}
	return p.ProcessOutgoing(conversationID, contactID, content, msgType)
}

// UpdateMessageStatus applies a delivery status from the provider to the
// matching outbound message.
func (p *Pipeline) UpdateMessageStatus(providerMessageID, status string) {
	res := p.db.Model(&models.Message{}).
		Where("provider_message_id = ?", providerMessageID).
		Update("status", status)
	if res.Error != nil {
		log.Error().Err(res.Error).Str("provider_message_id", providerMessageID).Msg("failed to update message status")
	}
}

func (p *Pipeline) resolveContact(account *models.WhatsAppAccount, phone, name string) (*models.Contact, error) {
	contact := models.Contact{
		UserID:    account.UserID,
		AccountID: account.ID,
		Phone:     phone,
		Name:      name,
	}
	// The unique (user_id, phone) index makes concurrent deliveries converge
	// on one row; losers of the race fall through to the fetch below.
	if err := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "phone"}},
		DoNothing: true,
	}).Create(&contact).Error; err != nil {
		return nil, err
	}

	var existing models.Contact
	if err := p.db.Where("user_id = ? AND phone = ?", account.UserID, phone).First(&existing).Error; err != nil {
		return nil, err
	}
	if existing.Name == "" && name != "" {
		p.db.Model(&existing).Update("name", name)
		existing.Name = name
	}
	return &existing, nil
}

func (p *Pipeline) resolveConversation(contact *models.Contact) (*models.Conversation, error) {
	conv := models.Conversation{
		ContactID: contact.ID,
		UserID:    contact.UserID,
	}
	if err := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contact_id"}},
		DoNothing: true,
	}).Create(&conv).Error; err != nil {
		return nil, err
	}

	var existing models.Conversation
	if err := p.db.Where("contact_id = ?", contact.ID).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (p *Pipeline) extractContent(msg pkgmodels.InboundMessage) (content, mediaURL string) {
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			content = msg.Text.Body
		}
	case "image", "video", "audio", "document":
		media := msg.Media()
		if media == nil {
			content = "[" + msg.Type + "]"
			return
		}
		switch {
		case media.Caption != "":
			content = media.Caption
		case media.Filename != "":
			content = media.Filename
		default:
			content = "[" + msg.Type + "]"
		}
		mediaURL = p.gateway.MediaURL(media.ID)
	default:
		content = "[" + msg.Type + "]"
	}
	return
}

// dispatchBot answers an inbound text when the owner has an active chatbot.
// The reply goes through the normal outgoing path, is tagged bot-authored
// afterwards and leaves one interaction record.
func (p *Pipeline) dispatchBot(userID uint, contact *models.Contact, conv *models.Conversation, inbound *models.Message) {
	var chatbot models.Chatbot
	err := p.db.Where("user_id = ? AND is_active = ?", userID, true).First(&chatbot).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Uint("user_id", userID).Msg("chatbot lookup failed")
		}
		return
	}

	start := time.Now()
	reply := bot.Respond(bot.Template(chatbot.Template), inbound.Content)

	sent, err := p.ProcessOutgoing(conv.ID, contact.ID, reply.Text, "text")
	if err != nil {
		log.Error().Err(err).Uint("chatbot_id", chatbot.ID).Msg("bot reply send failed")
		return
	}

	p.db.Model(&models.Message{}).Where("id = ?", sent.ID).Update("is_from_bot", true)

	interaction := models.BotInteraction{
		ChatbotID:      chatbot.ID,
		ContactID:      contact.ID,
		MessageID:      sent.ID,
		Trigger:        inbound.Content,
		Response:       reply.Text,
		Escalated:      reply.Escalated,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}
	if err := p.db.Create(&interaction).Error; err != nil {
		log.Error().Err(err).Uint("chatbot_id", chatbot.ID).Msg("failed to record bot interaction")
	}
}

func (p *Pipeline) notify(userID uint, msg *models.Message, contact *models.Contact, conv *models.Conversation) {
	if p.notifier == nil {
		return
	}
	// Re-read the conversation so pushed counters reflect the update above.
	var fresh models.Conversation
	if err := p.db.First(&fresh, conv.ID).Error; err == nil {
		conv = &fresh
	}
	p.notifier.NotifyNewMessage(userID, msg, contact, conv)
}
