package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"channel-service/internal/auth"
	"channel-service/internal/config"
	"channel-service/internal/db"
	"channel-service/internal/handlers"
	"channel-service/internal/middleware"
	"channel-service/internal/observability"
	"channel-service/internal/rabbitmq"
	"channel-service/internal/repositories"
	"channel-service/internal/telemetry"
	"channel-service/internal/ws"
)

const serviceName = "channel-service"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(context.Background(), cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event mirror mode=%s", rabbitmq.PublisherMode(publisher))

	if cfg.AMQPURL != "" {
		if obsPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
			log.Printf("observability publisher disabled: %v", err)
		} else {
			observability.SetPublisher(obsPublisher)
			defer obsPublisher.Close()
		}
	}

	audit := telemetry.NewAuditEmitter(publisher, "audit.channel-service", serviceName, cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	channelRepo := repositories.NewChannelRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	reactionRepo := repositories.NewReactionRepo(database)

	hub := ws.NewHub()
	events := handlers.NewEventPublisher(hub, publisher, channelRepo)

	resolver := auth.NewResolver(cfg.AuthIssuer)

	channelHandler := handlers.NewChannelHandler(channelRepo, userRepo, events, audit)
	messageHandler := handlers.NewMessageHandler(channelRepo, messageRepo, reactionRepo, userRepo, events)
	reactionHandler := handlers.NewReactionHandler(channelRepo, messageRepo, reactionRepo, events)
	userHandler := handlers.NewUserHandler(userRepo, channelRepo, events)

	gate := ws.NewGateHandler(hub, channelRepo, resolver)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(resolver, userRepo)

	api := router.Group("/", authMiddleware)

	api.POST("/channels", channelHandler.CreateChannel)
	api.GET("/channels", channelHandler.ListChannels)
	api.POST("/channels/dm/:other_user_id", channelHandler.GetOrCreateDM)
	api.PATCH("/channels/:channel_id", channelHandler.UpdateChannel)
	api.DELETE("/channels/:channel_id", channelHandler.DeleteChannel)
	api.POST("/channels/:channel_id/join", channelHandler.JoinChannel)
	api.GET("/channels/:channel_id/members", channelHandler.ListMembers)
	api.POST("/channels/:channel_id/members/:member_id", channelHandler.AddMember)
	api.DELETE("/channels/:channel_id/members/:member_id", channelHandler.RemoveMember)

	api.POST("/messages", messageHandler.PostMessage)
	api.GET("/messages/channel/:channel_id", messageHandler.ListChannelRoots)
	api.GET("/messages/thread/:parent_id", messageHandler.ListReplies)
	api.PUT("/messages/:message_id", messageHandler.EditMessage)
	api.DELETE("/messages/:message_id", messageHandler.DeleteMessage)

	api.POST("/messages/:message_id/reactions", reactionHandler.AddReaction)
	api.GET("/messages/:message_id/reactions", reactionHandler.ListReactions)
	api.DELETE("/messages/:message_id/reactions", reactionHandler.RemoveReaction)

	api.GET("/users/me", userHandler.GetMe)
	api.PUT("/users/me", userHandler.UpdateMe)

	router.GET("/ws/channels/:channel_id", gate.HandleChannel)
	router.GET("/ws/notifications", gate.HandleNotifications)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
