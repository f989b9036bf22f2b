package models

import "time"

// Order lifecycle statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusConfirmed = "confirmed"
	OrderStatusActive    = "active"
	OrderStatusCompleted = "completed"
	OrderStatusInvalid   = "invalid"
	OrderStatusExpired   = "expired"
	OrderStatusFailed    = "failed"
)

// Provisioning statuses (set once auto-provisioning has been attempted)
const (
	ProvisioningPending    = "pending"
	ProvisioningInProgress = "provisioning"
	ProvisioningActive     = "active"
	ProvisioningFailed     = "failed"
)

// Upstream provider constants
const (
	ProviderHostycare = "hostycare"
	ProviderSmartVPS  = "smartvps"
)

// Order represents a customer VPS order with its provisioning state
type Order struct {
	ID            string
	UserID        string
	CustomerEmail string

	// Requested machine
	Hostname string
	OS       string
	Memory   string

	// Lifecycle
	Status             string
	ProvisioningStatus *string
	AutoProvisioned    bool

	// Upstream reference
	Provider          string
	ProviderServiceID *string

	// Credentials (written once by a successful provisioning attempt,
	// or manually by an admin)
	IPAddress *string
	Username  *string
	Password  *string

	ProvisioningError *string
	ExpiryDate        *time.Time

	// Audit breadcrumb of the most recent admin or system action
	LastAction     *string
	LastActionTime *time.Time

	// Lease timestamp, stamped when an attempt acquires the order
	ProvisioningStartedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveProvider resolves the provider field, defaulting legacy orders
// without one to hostycare.
func (o *Order) EffectiveProvider() string {
	if o.Provider == "" {
		return ProviderHostycare
	}
	return o.Provider
}

// HasProvisioningStatus reports whether the order's provisioning status
// equals the given value.
func (o *Order) HasProvisioningStatus(status string) bool {
	return o.ProvisioningStatus != nil && *o.ProvisioningStatus == status
}

// NeedsProvisioning reports whether an order is eligible for an automatic
// provisioning attempt. First attempts cover paid/confirmed orders that were
// never auto-provisioned; SmartVPS orders additionally stay eligible after a
// failed or partially-completed attempt because that upstream fails more
// often.
func NeedsProvisioning(o *Order) bool {
	if (o.Status == OrderStatusPaid || o.Status == OrderStatusConfirmed) && !o.AutoProvisioned {
		return true
	}
	if o.EffectiveProvider() != ProviderSmartVPS {
		return false
	}
	if o.HasProvisioningStatus(ProvisioningFailed) {
		return true
	}
	if o.Status == OrderStatusConfirmed && (o.IPAddress == nil || *o.IPAddress == "") {
		return true
	}
	return false
}

// OrderLog represents an order action log entry
type OrderLog struct {
	ID        string
	OrderID   string
	Action    string
	Status    string
	Message   string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}
