package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/adboardhq/platform/shared/events"
)

// WebhookClient forwards enforcement events to the configured notification
// endpoint (mail gateway, ops webhook, or whatever is wired in).
type WebhookClient struct {
	endpoint    string
	httpClient  *http.Client
	connected   bool
	lastSuccess time.Time
	lastError   error
	mutex       sync.RWMutex
}

// NewWebhookClient creates a new webhook client
func NewWebhookClient(endpoint string) *WebhookClient {
	return &WebhookClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		connected: false,
	}
}

// Deliver posts one enforcement event to the notification endpoint.
func (c *WebhookClient) Deliver(event events.Event) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	payload := map[string]interface{}{
		"event_type": event.Type,
		"data":       event,
		"timestamp":  time.Now(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		c.lastError = fmt.Errorf("failed to marshal event: %w", err)
		return err
	}

	req, err := http.NewRequest("POST", c.endpoint+"/notifications", bytes.NewBuffer(jsonData))
	if err != nil {
		c.lastError = fmt.Errorf("failed to create request: %w", err)
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", event.TenantID.String())
	req.Header.Set("X-Event-Type", event.Type)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.lastError = fmt.Errorf("failed to deliver notification: %w", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.lastError = fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
		return c.lastError
	}

	c.connected = true
	c.lastSuccess = time.Now()
	c.lastError = nil
	return nil
}

// GetStatus returns the current connection status
func (c *WebhookClient) GetStatus() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return map[string]interface{}{
		"connected":    c.connected,
		"endpoint":     c.endpoint,
		"last_success": c.lastSuccess,
		"last_error":   c.lastError,
	}
}

// Reconnect probes the notification endpoint's health check.
func (c *WebhookClient) Reconnect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	req, err := http.NewRequest("GET", c.endpoint+"/health", nil)
	if err != nil {
		c.lastError = fmt.Errorf("failed to create health check request: %w", err)
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.lastError = fmt.Errorf("health check failed: %w", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.lastError = fmt.Errorf("health check returned status %d", resp.StatusCode)
		return c.lastError
	}

	c.connected = true
	c.lastSuccess = time.Now()
	c.lastError = nil
	return nil
}
