package models

import (
	"time"
)

// Role values for User.Role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleCEO   = "ceo"
)

// Message direction values.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// User represents an authenticated account that owns WhatsApp Business
// numbers, contacts and chatbots.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone        string     `gorm:"type:varchar(50)" json:"phone"`
	PasswordHash string     `gorm:"type:varchar(255)" json:"-"`
	Role         string     `gorm:"type:varchar(20);default:'user'" json:"role"`
	Provider     string     `gorm:"type:varchar(20);default:'local'" json:"provider"`
	Active       bool       `gorm:"default:true" json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// WhatsAppAccount links a user to a Business API phone number.
type WhatsAppAccount struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"index;not null" json:"user_id"`
	PhoneNumberID string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"phone_number_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (WhatsAppAccount) TableName() string {
	return "whatsapp_accounts"
}

// Contact represents a person who has messaged the business. The composite
// unique index on (user_id, phone) is what makes concurrent webhook
// deliveries for the same number converge on a single row.
type Contact struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"uniqueIndex:ux_contacts_user_phone;not null" json:"user_id"`
	AccountID     uint       `gorm:"index" json:"account_id"`
	Phone         string     `gorm:"type:varchar(50);uniqueIndex:ux_contacts_user_phone;not null" json:"phone"`
	Name          string     `gorm:"type:varchar(255)" json:"name"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// Conversation is the single message thread for a contact.
type Conversation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ContactID     uint       `gorm:"uniqueIndex;not null" json:"contact_id"`
	UserID        uint       `gorm:"index;not null" json:"user_id"`
	UnreadCount   int        `gorm:"default:0" json:"unread_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message is a stored inbound or outbound message. ProviderMessageID is the
// wamid assigned by the Business API; its unique index makes redelivered
// webhook payloads a no-op.
type Message struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ConversationID    uint      `gorm:"index;not null" json:"conversation_id"`
	ContactID         uint      `gorm:"index;not null" json:"contact_id"`
	Direction         string    `gorm:"type:varchar(10);not null" json:"direction"`
	Type              string    `gorm:"type:varchar(20);default:'text'" json:"type"`
	Content           string    `gorm:"type:text" json:"content"`
	MediaURL          string    `gorm:"type:text" json:"media_url"`
	ProviderMessageID string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"provider_message_id"`
	Status            string    `gorm:"type:varchar(20)" json:"status"`
	IsFromBot         bool      `gorm:"default:false" json:"is_from_bot"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Chatbot is a per-user automated responder bound to a business template.
type Chatbot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Template  string    `gorm:"type:varchar(50);not null" json:"template"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Chatbot) TableName() string {
	return "chatbots"
}

// BotInteraction records one bot reply: what triggered it, what was sent,
// whether escalation keywords were detected and how long the round took.
type BotInteraction struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ChatbotID      uint      `gorm:"index;not null" json:"chatbot_id"`
	ContactID      uint      `gorm:"index" json:"contact_id"`
	MessageID      uint      `json:"message_id"`
	Trigger        string    `gorm:"type:text" json:"trigger"`
	Response       string    `gorm:"type:text" json:"response"`
	Escalated      bool      `gorm:"default:false" json:"escalated"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BotInteraction) TableName() string {
	return "bot_interactions"
}

// WebhookEvent is the raw inbound webhook payload. Ingestion marks events
// processed; the retention job deletes old processed rows.
type WebhookEvent struct {
	ID          string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Payload     string     `gorm:"type:text" json:"payload"`
	Processed   bool       `gorm:"default:false;index" json:"processed"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
