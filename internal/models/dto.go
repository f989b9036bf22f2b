package models

import "time"

// ==================== Requests ====================

// ProvisionRequest triggers a single-order provisioning attempt
type ProvisionRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

// UpdateOrderRequest is the manual admin edit. It bypasses the provisioning
// state machine entirely: only the fields present in the request are written.
type UpdateOrderRequest struct {
	OrderID            string  `json:"orderId" binding:"required"`
	IPAddress          *string `json:"ipAddress"`
	Username           *string `json:"username"`
	Password           *string `json:"password"`
	OS                 *string `json:"os"`
	Status             *string `json:"status"`
	Provider           *string `json:"provider"`
	ProvisioningStatus *string `json:"provisioningStatus"`
}

// ==================== Responses ====================

// ProvisionResponse is returned by the single-order provision endpoint
type ProvisionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// BatchSummary aggregates one batch provisioning run.
// Successful + Failed equals the number of eligible orders processed;
// Retries counts extra attempts and never double-counts the total.
type BatchSummary struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Retries    int `json:"retries"`
}

// BatchResult is the data payload of the batch provision endpoint
type BatchResult struct {
	Success bool          `json:"success"`
	Summary *BatchSummary `json:"summary,omitempty"`
	Message string        `json:"message,omitempty"`
}

// OrderResponse is the wire shape consumed by the admin portal and the user
// dashboard. The provider-specific service id field mirrors what the portal
// expects: hostycareServiceId or smartvpsServiceId depending on the provider.
type OrderResponse struct {
	ID                 string `json:"id"`
	UserID             string `json:"userId,omitempty"`
	CustomerEmail      string `json:"customerEmail,omitempty"`
	Hostname           string `json:"hostname,omitempty"`
	OS                 string `json:"os"`
	Memory             string `json:"memory,omitempty"`
	Status             string `json:"status"`
	ProvisioningStatus string `json:"provisioningStatus,omitempty"`
	AutoProvisioned    bool   `json:"autoProvisioned"`
	Provider           string `json:"provider"`
	HostycareServiceID string `json:"hostycareServiceId,omitempty"`
	SmartVPSServiceID  string `json:"smartvpsServiceId,omitempty"`
	IPAddress          string `json:"ipAddress,omitempty"`
	Username           string `json:"username,omitempty"`
	Password           string `json:"password,omitempty"`
	ProvisioningError  string `json:"provisioningError,omitempty"`
	ExpiryDate         string `json:"expiryDate,omitempty"`
	LastAction         string `json:"lastAction,omitempty"`
	LastActionTime     string `json:"lastActionTime,omitempty"`
	CreatedAt          string `json:"createdAt"`
}

// OrderLogResponse is a single action log entry
type OrderLogResponse struct {
	ID        string                 `json:"id"`
	OrderID   string                 `json:"orderId"`
	Action    string                 `json:"action"`
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt string                 `json:"createdAt"`
}

// NewOrderResponse converts an order record to its wire shape.
// Credentials are included only when includeCredentials is set.
func NewOrderResponse(o *Order, includeCredentials bool) *OrderResponse {
	resp := &OrderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		CustomerEmail:   o.CustomerEmail,
		Hostname:        o.Hostname,
		OS:              o.OS,
		Memory:          o.Memory,
		Status:          o.Status,
		AutoProvisioned: o.AutoProvisioned,
		Provider:        o.EffectiveProvider(),
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}

	if o.ProvisioningStatus != nil {
		resp.ProvisioningStatus = *o.ProvisioningStatus
	}
	if o.ProvisioningError != nil {
		resp.ProvisioningError = *o.ProvisioningError
	}
	if o.ExpiryDate != nil {
		resp.ExpiryDate = o.ExpiryDate.Format(time.RFC3339)
	}
	if o.LastAction != nil {
		resp.LastAction = *o.LastAction
	}
	if o.LastActionTime != nil {
		resp.LastActionTime = o.LastActionTime.Format(time.RFC3339)
	}

	if o.ProviderServiceID != nil {
		switch resp.Provider {
		case ProviderSmartVPS:
			resp.SmartVPSServiceID = *o.ProviderServiceID
		default:
			resp.HostycareServiceID = *o.ProviderServiceID
		}
	}

	if includeCredentials {
		if o.IPAddress != nil {
			resp.IPAddress = *o.IPAddress
		}
		if o.Username != nil {
			resp.Username = *o.Username
		}
		if o.Password != nil {
			resp.Password = *o.Password
		}
	}

	return resp
}

// NewOrderLogResponse converts a log record to its wire shape
func NewOrderLogResponse(l *OrderLog) *OrderLogResponse {
	return &OrderLogResponse{
		ID:        l.ID,
		OrderID:   l.OrderID,
		Action:    l.Action,
		Status:    l.Status,
		Message:   l.Message,
		Metadata:  l.Metadata,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
}
