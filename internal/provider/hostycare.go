package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// HostycareClient creates VPS services against the Hostycare API.
// Creation is not idempotent upstream and Hostycare issues no idempotency
// tokens, so CreateServer first looks for an existing service labeled with
// the order id before creating a new one.
type HostycareClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Entry
}

func NewHostycareClient(baseURL, apiKey string, logger *logrus.Logger) *HostycareClient {
	return &HostycareClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.WithField("component", "hostycare-client"),
	}
}

func (c *HostycareClient) Name() string { return NameHostycare }

type hostycareService struct {
	ServiceID string `json:"service_id"`
	Label     string `json:"label,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

type hostycareServiceList struct {
	Services []hostycareService `json:"services"`
}

// CreateServer creates a VPS service for the given spec
func (c *HostycareClient) CreateServer(ctx context.Context, spec ServerSpec) (*ServerInfo, error) {
	// A previous transient failure may already have created the service.
	if existing, err := c.findServiceByLabel(ctx, spec.OrderID); err != nil {
		c.logger.Warnf("lookup existing service for order %s failed: %v", spec.OrderID, err)
	} else if existing != nil {
		c.logger.Infof("reusing existing service %s for order %s", existing.ServiceID, spec.OrderID)
		return existing, nil
	}

	payload := map[string]string{
		"hostname": spec.Hostname,
		"os":       spec.OS,
		"memory":   spec.Memory,
		"label":    spec.OrderID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Permanent(NameHostycare, "create server", fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/services", bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(NameHostycare, "create server", fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, Transient(NameHostycare, "create server", fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(NameHostycare, "create server", fmt.Errorf("read response: %w", err))
	}

	var result hostycareService
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= 400 {
			return nil, c.statusError(resp.StatusCode, string(respBody))
		}
		return nil, Permanent(NameHostycare, "create server",
			fmt.Errorf("decode response: %w (body: %s)", err, string(respBody)))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := result.Error
		if msg == "" {
			msg = string(respBody)
		}
		return nil, c.statusError(resp.StatusCode, msg)
	}

	c.logger.Infof("service created: %s (order %s)", result.ServiceID, spec.OrderID)
	return &ServerInfo{
		ServiceID: result.ServiceID,
		IPAddress: result.IPAddress,
		Username:  result.Username,
		Password:  result.Password,
	}, nil
}

// findServiceByLabel looks up a service by its label. Returns nil when no
// usable service exists.
func (c *HostycareClient) findServiceByLabel(ctx context.Context, label string) (*ServerInfo, error) {
	u := c.baseURL + "/services?label=" + url.QueryEscape(label)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hostycare returned status %d", resp.StatusCode)
	}

	var list hostycareServiceList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	for _, svc := range list.Services {
		info := &ServerInfo{
			ServiceID: svc.ServiceID,
			IPAddress: svc.IPAddress,
			Username:  svc.Username,
			Password:  svc.Password,
		}
		if info.Complete() {
			return info, nil
		}
	}
	return nil, nil
}

func (c *HostycareClient) statusError(code int, msg string) *Error {
	err := fmt.Errorf("hostycare returned status %d: %s", code, msg)
	if classifyStatus(code) == KindTransient {
		return Transient(NameHostycare, "create server", err)
	}
	return Permanent(NameHostycare, "create server", err)
}

var _ Adapter = (*HostycareClient)(nil)
