package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/adboardhq/platform/shared/events"
)

const maxDeliveryRetries = 5

// KafkaConsumer handles Kafka message consumption
type KafkaConsumer struct {
	eventReader *kafka.Reader
	db          *gorm.DB
}

// NewKafkaConsumer creates a new Kafka consumer
func NewKafkaConsumer(broker string, db *gorm.DB) (*KafkaConsumer, error) {
	eventReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{broker},
		Topic:          events.Topic,
		GroupID:        "notifier-service",
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})

	return &KafkaConsumer{
		eventReader: eventReader,
		db:          db,
	}, nil
}

// ConsumeEnforcementEvents reads enforcement events and forwards each one to
// the notification endpoint. Failed deliveries go to the retry table rather
// than blocking the consumer.
func (kc *KafkaConsumer) ConsumeEnforcementEvents(client *WebhookClient) {
	logrus.Info("Starting enforcement events consumer...")

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		msg, err := kc.eventReader.ReadMessage(ctx)
		cancel()

		if err != nil {
			// Timeouts just mean no messages are available
			if err == context.DeadlineExceeded || err.Error() == "context deadline exceeded" {
				continue
			}
			logrus.Errorf("Error reading enforcement event: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}

		var event events.Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logrus.Errorf("Error unmarshaling enforcement event: %v", err)
			continue
		}

		if err := client.Deliver(event); err != nil {
			logrus.Errorf("Error delivering notification for tenant %s: %v", event.TenantID, err)
			if dlqErr := kc.storeFailedDelivery(event, err); dlqErr != nil {
				logrus.Errorf("Failed to store failed delivery: %v", dlqErr)
			}
		} else {
			logrus.Infof("Delivered %s notification for tenant %s", event.Type, event.TenantID)
		}
	}
}

// FailedNotification is a notification delivery awaiting retry.
type FailedNotification struct {
	ID           string     `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	EventID      string     `gorm:"not null" json:"event_id"`
	TenantID     string     `gorm:"not null;index" json:"tenant_id"`
	EventType    string     `gorm:"not null" json:"event_type"`
	Payload      string     `gorm:"type:text;not null" json:"payload"`
	ErrorMessage string     `gorm:"not null" json:"error_message"`
	RetryCount   int        `gorm:"default:0" json:"retry_count"`
	Status       string     `gorm:"default:'pending';index" json:"status"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

func (FailedNotification) TableName() string {
	return "failed_notifications"
}

// storeFailedDelivery records an undeliverable notification for retry.
func (kc *KafkaConsumer) storeFailedDelivery(event events.Event, deliveryErr error) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	nextRetryAt := time.Now().Add(1 * time.Minute)
	failed := FailedNotification{
		EventID:      event.ID.String(),
		TenantID:     event.TenantID.String(),
		EventType:    event.Type,
		Payload:      string(payload),
		ErrorMessage: deliveryErr.Error(),
		Status:       "pending",
		NextRetryAt:  &nextRetryAt,
	}

	return kc.db.Create(&failed).Error
}

// RetryFailedDeliveries periodically redelivers pending notifications with
// exponential backoff, abandoning them after maxDeliveryRetries attempts.
func (kc *KafkaConsumer) RetryFailedDeliveries(client *WebhookClient, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		var pending []FailedNotification
		err := kc.db.Where("status = ? AND next_retry_at <= ?", "pending", time.Now()).
			Limit(100).Find(&pending).Error
		if err != nil {
			logrus.Errorf("Error loading pending notifications: %v", err)
			continue
		}

		for _, failed := range pending {
			var event events.Event
			if err := json.Unmarshal([]byte(failed.Payload), &event); err != nil {
				failed.Status = "corrupt"
				kc.db.Save(&failed)
				continue
			}

			if err := client.Deliver(event); err != nil {
				failed.RetryCount++
				failed.ErrorMessage = err.Error()
				if failed.RetryCount >= maxDeliveryRetries {
					failed.Status = "failed"
					failed.NextRetryAt = nil
				} else {
					next := time.Now().Add(time.Duration(1<<failed.RetryCount) * time.Minute)
					failed.NextRetryAt = &next
				}
			} else {
				now := time.Now()
				failed.Status = "resolved"
				failed.ResolvedAt = &now
			}

			if err := kc.db.Save(&failed).Error; err != nil {
				logrus.Errorf("Error updating failed notification %s: %v", failed.ID, err)
			}
		}
	}
}

// Close closes the Kafka consumer
func (kc *KafkaConsumer) Close() error {
	if err := kc.eventReader.Close(); err != nil {
		return fmt.Errorf("failed to close event reader: %w", err)
	}
	return nil
}
