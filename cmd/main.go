package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopfront/order-reconciler/internal/events"
	"github.com/shopfront/order-reconciler/internal/handler"
	"github.com/shopfront/order-reconciler/internal/notify"
	"github.com/shopfront/order-reconciler/internal/repository"
	"github.com/shopfront/order-reconciler/internal/service"
	"github.com/shopfront/order-reconciler/internal/shipping"
	"github.com/shopfront/order-reconciler/internal/webhook"
	"github.com/shopfront/order-reconciler/pkg/config"
	"github.com/shopfront/order-reconciler/pkg/middleware"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.Info("Service configuration",
		zap.String("port", cfg.Port),
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("order_table", cfg.OrderTableName))

	// Initialize components
	dynamoClient, err := repository.NewDynamoDBClient(cfg)
	if err != nil {
		log.Fatal("Failed to create DynamoDB client:", err)
	}

	kafkaProducer, err := events.NewKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		log.Fatal("Failed to create Kafka producer:", err)
	}
	defer kafkaProducer.Close()

	realtime := events.NewRealtimePublisher(cfg.KafkaBrokers, cfg.RealtimeTopic, logger)
	defer realtime.Close()

	deadLetter := events.NewDeadLetterProducer(cfg.KafkaBrokers, cfg.DeadLetterTopic, logger)
	defer deadLetter.Close()

	emailClient := notify.NewHTTPNotifier(cfg.EmailEndpoint, cfg.EmailAPIKey)
	smsClient := notify.NewHTTPNotifier(cfg.SMSEndpoint, cfg.SMSAPIKey)
	dispatcher := notify.NewDispatcher(emailClient, smsClient, realtime, cfg.NotifyTimeout, logger)

	shippingClient := shipping.NewClient(cfg.ShippingEndpoint, cfg.ShippingAPIKey)
	normalizer := webhook.NewNormalizer(cfg.PaymentWebhookSecret, cfg.TrackingWebhookSecret)

	orderRepo := repository.NewOrderRepository(dynamoClient, cfg.OrderTableName)
	orderService := service.NewOrderService(orderRepo, dispatcher, kafkaProducer, shippingClient, logger)
	orderHandler := handler.NewOrderHandler(orderService, logger)
	webhookHandler := handler.NewWebhookHandler(normalizer, orderService, deadLetter, logger)

	// Setup Gin Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.RequestID())

	// Routes
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/payment", webhookHandler.HandlePayment)
		webhooks.POST("/tracking/:trackingNumber", webhookHandler.HandleTracking)
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/orders/:id", orderHandler.GetOrder)
		v1.POST("/orders/:id/shipping", orderHandler.ArrangeShipping)
		v1.GET("/users/:userID/orders", orderHandler.ListUserOrders)
		v1.PUT("/inventory/:productID", orderHandler.SeedInventory)
		v1.GET("/health", func(c *gin.Context) {
			status := gin.H{
				"status":  "healthy",
				"service": "order-reconciler",
				"port":    cfg.Port,
			}
			if err := kafkaProducer.HealthCheck(); err != nil {
				status["kafka"] = "unhealthy"
				c.JSON(503, status)
				return
			}
			status["kafka"] = "healthy"
			c.JSON(200, status)
		})
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}

	logger.Info("Server stopped")
}
