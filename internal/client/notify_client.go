package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stackvps/reseller-platform/provision-service/internal/models"
)

// NotifyClient dispatches provisioning outcome events to the
// notification-service, which owns templated email delivery. Delivery
// failures are the caller's to log; they never fail a provisioning attempt.
type NotifyClient struct {
	baseURL     string
	internalKey string
	httpClient  *http.Client
}

// NewNotifyClient creates a new notification-service client
func NewNotifyClient(baseURL, internalKey string) *NotifyClient {
	return &NotifyClient{
		baseURL:     baseURL,
		internalKey: internalKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type provisionEvent struct {
	OrderID       string `json:"orderId"`
	Outcome       string `json:"outcome"` // success | failure
	Provider      string `json:"provider"`
	CustomerEmail string `json:"customerEmail,omitempty"`
	IPAddress     string `json:"ipAddress,omitempty"`
	Username      string `json:"username,omitempty"`
	Error         string `json:"error,omitempty"`
}

// NotifyProvisioned sends a success event for an order
func (c *NotifyClient) NotifyProvisioned(ctx context.Context, order *models.Order) error {
	event := &provisionEvent{
		OrderID:       order.ID,
		Outcome:       "success",
		Provider:      order.EffectiveProvider(),
		CustomerEmail: order.CustomerEmail,
	}
	if order.IPAddress != nil {
		event.IPAddress = *order.IPAddress
	}
	if order.Username != nil {
		event.Username = *order.Username
	}
	return c.send(ctx, event)
}

// NotifyProvisionFailed sends a failure event for an order
func (c *NotifyClient) NotifyProvisionFailed(ctx context.Context, order *models.Order, errMsg string) error {
	return c.send(ctx, &provisionEvent{
		OrderID:       order.ID,
		Outcome:       "failure",
		Provider:      order.EffectiveProvider(),
		CustomerEmail: order.CustomerEmail,
		Error:         errMsg,
	})
}

func (c *NotifyClient) send(ctx context.Context, event *provisionEvent) error {
	url := fmt.Sprintf("%s/api/internal/notifications/provision", c.baseURL)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", c.internalKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification-service returned status %d", resp.StatusCode)
	}

	return nil
}
