package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// insecureJWTSecret is the fallback signing key used when JWT_SECRET is
// unset. It keeps local development working out of the box; running with it
// in production is a misconfiguration and is logged as such.
const insecureJWTSecret = "dev-secret-change-me"

type Config struct {
	Port string

	// Database. Driver is "sqlite" or "postgres".
	DBDriver   string
	DBPath     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	// Auth
	JWTSecret   string
	MasterToken string

	// WhatsApp Business API
	VerifyToken   string
	WhatsAppToken string
	PhoneNumberID string
	GraphAPIBase  string

	LogLevel             string
	AllowOrigins         []string
	WebhookRetentionDays int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file loaded")
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		DBDriver:             getEnv("DB_DRIVER", "sqlite"),
		DBPath:               getEnv("DB_PATH", "./whatsapp.db"),
		DBHost:               getEnv("DB_HOST", "localhost"),
		DBUser:               getEnv("DB_USER", "postgres"),
		DBPassword:           getEnv("DB_PASSWORD", ""),
		DBName:               getEnv("DB_NAME", "whatsapp"),
		DBPort:               getEnv("DB_PORT", "5432"),
		DBSSLMode:            getEnv("DB_SSLMODE", "disable"),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		MasterToken:          getEnv("MASTER_TOKEN", ""),
		VerifyToken:          getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:        getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:        getEnv("PHONE_NUMBER_ID", ""),
		GraphAPIBase:         getEnv("GRAPH_API_BASE", "https://graph.facebook.com/v19.0"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		AllowOrigins:         []string{getEnv("FRONTEND_URL", "http://localhost:3000")},
		WebhookRetentionDays: getEnvInt("WEBHOOK_RETENTION_DAYS", 30),
	}

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is not set, using an insecure default key")
		cfg.JWTSecret = insecureJWTSecret
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
