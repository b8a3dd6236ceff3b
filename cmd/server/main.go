package main

import (
	"os"
	"time"

	"whatsapp-backend/internal/api"
	"whatsapp-backend/internal/auth"
	"whatsapp-backend/internal/config"
	"whatsapp-backend/internal/database"
	"whatsapp-backend/internal/jobs"
	"whatsapp-backend/internal/models"
	"whatsapp-backend/internal/pipeline"
	"whatsapp-backend/internal/webhook"
	"whatsapp-backend/internal/whatsapp"
	"whatsapp-backend/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.LoadConfig()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}

	whatsappClient := whatsapp.NewClient(cfg)
	p := pipeline.New(db, whatsappClient)
	hub := ws.NewHub(cfg.JWTSecret)
	// The pipeline pushes new messages to the hub; the hub relays
	// client-originated sends back through the pipeline.
	p.SetNotifier(hub)
	hub.SetSender(p)

	retention := jobs.NewRetention(db, cfg.WebhookRetentionDays)
	if err := retention.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start retention job")
	}
	defer retention.Stop()

	webhookHandler := webhook.NewHandler(db, whatsappClient, p)
	authHandler := api.NewAuthHandler(db, cfg)
	accountHandler := api.NewAccountHandler(db)
	contactHandler := api.NewContactHandler(db)
	conversationHandler := api.NewConversationHandler(db, p)
	chatbotHandler := api.NewChatbotHandler(db)
	analyticsHandler := api.NewAnalyticsHandler(db)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Business API webhook
	r.GET("/webhook", webhookHandler.Verify)
	r.POST("/webhook", webhookHandler.HandleEvent)

	// Real-time channel; authentication happens in-band with an auth frame.
	r.GET("/ws", hub.ServeWs)

	r.POST("/api/auth/register", authHandler.Register)
	r.POST("/api/auth/login", authHandler.Login)
	r.POST("/api/auth/google", authHandler.GoogleLogin)
	r.POST("/api/auth/master", authHandler.MasterLogin)

	apiGroup := r.Group("/api", auth.RequireAuth(cfg.JWTSecret))
	{
		apiGroup.GET("/auth/me", authHandler.Me)
		apiGroup.GET("/users", auth.RequireRole(models.RoleAdmin, models.RoleCEO), authHandler.ListUsers)

		apiGroup.GET("/accounts", accountHandler.List)
		apiGroup.POST("/accounts", accountHandler.Create)
		apiGroup.DELETE("/accounts/:id", accountHandler.Delete)

		apiGroup.GET("/contacts", contactHandler.List)
		apiGroup.POST("/contacts", contactHandler.Create)
		apiGroup.PUT("/contacts/:id", contactHandler.Update)
		apiGroup.DELETE("/contacts/:id", contactHandler.Delete)

		apiGroup.GET("/conversations", conversationHandler.List)
		apiGroup.GET("/conversations/:id", conversationHandler.Get)
		apiGroup.POST("/conversations/:id/read", conversationHandler.MarkRead)
		apiGroup.POST("/conversations/:id/messages", conversationHandler.SendMessage)

		apiGroup.GET("/chatbots", chatbotHandler.List)
		apiGroup.POST("/chatbots", chatbotHandler.Create)
		apiGroup.PUT("/chatbots/:id", chatbotHandler.Toggle)
		apiGroup.DELETE("/chatbots/:id", chatbotHandler.Delete)
		apiGroup.GET("/chatbots/:id/analytics", chatbotHandler.Analytics)

		apiGroup.GET("/analytics", analyticsHandler.Overview)
	}

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
