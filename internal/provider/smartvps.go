package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// SmartVPSClient creates VPS instances against the SmartVPS API.
// SmartVPS has no lookup by label and no idempotency tokens, so a retried
// creation may leave a duplicate instance upstream; the caller logs that
// risk before retrying.
type SmartVPSClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *logrus.Entry
}

func NewSmartVPSClient(baseURL, apiToken string, logger *logrus.Logger) *SmartVPSClient {
	return &SmartVPSClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.WithField("component", "smartvps-client"),
	}
}

func (c *SmartVPSClient) Name() string { return NameSmartVPS }

type smartVPSCreateRequest struct {
	Name     string `json:"name"`
	Template string `json:"template"`
	Memory   string `json:"memory,omitempty"`
}

type smartVPSInstance struct {
	ID           string `json:"id"`
	MainIP       string `json:"main_ip"`
	RootUser     string `json:"root_user"`
	RootPassword string `json:"root_password"`
	State        string `json:"state,omitempty"`
	Message      string `json:"message,omitempty"`
}

// CreateServer creates a VPS instance for the given spec
func (c *SmartVPSClient) CreateServer(ctx context.Context, spec ServerSpec) (*ServerInfo, error) {
	payload := smartVPSCreateRequest{
		Name:     spec.Hostname,
		Template: spec.OS,
		Memory:   spec.Memory,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, Permanent(NameSmartVPS, "create server", fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/instances", bytes.NewReader(body))
	if err != nil {
		return nil, Permanent(NameSmartVPS, "create server", fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, Transient(NameSmartVPS, "create server", fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient(NameSmartVPS, "create server", fmt.Errorf("read response: %w", err))
	}

	var result smartVPSInstance
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= 400 {
			return nil, c.statusError(resp.StatusCode, string(respBody))
		}
		return nil, Permanent(NameSmartVPS, "create server",
			fmt.Errorf("decode response: %w (body: %s)", err, string(respBody)))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := result.Message
		if msg == "" {
			msg = string(respBody)
		}
		return nil, c.statusError(resp.StatusCode, msg)
	}

	c.logger.Infof("instance created: %s (order %s)", result.ID, spec.OrderID)
	return &ServerInfo{
		ServiceID: result.ID,
		IPAddress: result.MainIP,
		Username:  result.RootUser,
		Password:  result.RootPassword,
	}, nil
}

func (c *SmartVPSClient) statusError(code int, msg string) *Error {
	err := fmt.Errorf("smartvps returned status %d: %s", code, msg)
	if classifyStatus(code) == KindTransient {
		return Transient(NameSmartVPS, "create server", err)
	}
	return Permanent(NameSmartVPS, "create server", err)
}

var _ Adapter = (*SmartVPSClient)(nil)
