package main

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/adboardhq/platform/shared/config"
	"github.com/adboardhq/platform/shared/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	// Initialize database connection
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// Auto-migrate the failed notifications table
	if err := db.AutoMigrate(&FailedNotification{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Kafka consumer with database connection for the retry table
	kafkaConsumer, err := NewKafkaConsumer(os.Getenv("KAFKA_BROKER"), db)
	if err != nil {
		log.Fatal("Failed to initialize Kafka consumer:", err)
	}
	defer kafkaConsumer.Close()

	// Initialize webhook client for the notification endpoint
	webhookClient := NewWebhookClient(os.Getenv("NOTIFICATION_ENDPOINT"))

	// Start consumer and the retry loop for failed deliveries
	go kafkaConsumer.ConsumeEnforcementEvents(webhookClient)
	go kafkaConsumer.RetryFailedDeliveries(webhookClient, 1*time.Minute)

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Notifier service is healthy", nil)
	})

	// Observability endpoints for the delivery pipeline
	notifier := router.Group("/notifier")
	{
		notifier.GET("/status", handleGetNotifierStatus(webhookClient))
		notifier.POST("/reconnect", handleReconnectEndpoint(webhookClient))
		notifier.GET("/failed", handleGetFailedDeliveries(db))
	}

	// Start server
	port := os.Getenv("NOTIFIER_SERVICE_PORT")
	if port == "" {
		port = "8005"
	}

	logrus.Infof("Notifier service starting on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start notifier service:", err)
	}
}
