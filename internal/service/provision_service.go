package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stackvps/reseller-platform/provision-service/internal/config"
	"github.com/stackvps/reseller-platform/provision-service/internal/models"
	"github.com/stackvps/reseller-platform/provision-service/internal/provider"
	"github.com/stackvps/reseller-platform/provision-service/internal/repository"
)

// Successful provisionings are valid for 30 days from completion
const provisionValidity = 30 * 24 * time.Hour

// Windows machines on Hostycare are reachable over RDP on a fixed
// non-standard port, stored as part of the IP
const windowsRDPPortSuffix = ":49965"

// OrderStore is the persistence contract the provisioning flows depend on
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ListAll(ctx context.Context) ([]*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Order, error)
	LoadEligible(ctx context.Context) ([]*models.Order, error)
	BeginProvisioning(ctx context.Context, id string) (*models.Order, error)
	CompleteProvisioning(ctx context.Context, id, ipAddress, username, password, serviceID string, expiryDate time.Time) error
	FailProvisioning(ctx context.Context, id, errMsg string) error
	AdminUpdate(ctx context.Context, req *models.UpdateOrderRequest) error
	ReleaseStaleProvisioning(ctx context.Context, cutoff time.Time) (int64, error)
}

// ActionLogger records the per-order audit trail
type ActionLogger interface {
	LogAction(ctx context.Context, orderID, action, status, message string) error
	GetByOrderID(ctx context.Context, orderID string, limit int) ([]*models.OrderLog, error)
}

// Notifier dispatches terminal-state events to the notification-service
type Notifier interface {
	NotifyProvisioned(ctx context.Context, order *models.Order) error
	NotifyProvisionFailed(ctx context.Context, order *models.Order, errMsg string) error
}

// ProvisionService drives single orders through the provisioning state
// machine
type ProvisionService struct {
	cfg      *config.Config
	orders   OrderStore
	logs     ActionLogger
	adapters map[string]provider.Adapter
	notifier Notifier
	logger   *logrus.Entry
}

// NewProvisionService creates a new provision service
func NewProvisionService(
	cfg *config.Config,
	orders OrderStore,
	logs ActionLogger,
	adapters map[string]provider.Adapter,
	notifier Notifier,
	logger *logrus.Logger,
) *ProvisionService {
	return &ProvisionService{
		cfg:      cfg,
		orders:   orders,
		logs:     logs,
		adapters: adapters,
		notifier: notifier,
		logger:   logger.WithField("component", "provision-service"),
	}
}

// ProvisionOrder runs one provisioning attempt for the given order.
//
// started reports whether this call acquired the provisioning lease: a
// conflict with an in-flight attempt returns (false, nil) because another
// attempt owns the order and the caller has nothing to do. Any non-nil error
// has already been recorded on the order; the error value exists so the batch
// orchestrator can classify it for retry.
func (s *ProvisionService) ProvisionOrder(ctx context.Context, orderID string) (started bool, err error) {
	order, err := s.orders.BeginProvisioning(ctx, orderID)
	if errors.Is(err, repository.ErrConflict) {
		s.logger.Infof("order %s already has a provisioning attempt in flight, skipping", orderID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("begin provisioning: %w", err)
	}

	s.logger.Infof("provisioning order %s via %s (os=%s)", order.ID, order.EffectiveProvider(), order.OS)

	adapter, ok := s.adapters[order.EffectiveProvider()]
	if !ok {
		provErr := provider.Permanent(order.EffectiveProvider(), "resolve adapter",
			fmt.Errorf("no adapter configured for provider %q", order.EffectiveProvider()))
		s.failOrder(ctx, order, provErr.Error())
		return true, provErr
	}

	spec := provider.ServerSpec{
		OrderID:  order.ID,
		Hostname: orderHostname(order),
		OS:       order.OS,
		Memory:   order.Memory,
	}

	info, err := adapter.CreateServer(ctx, spec)
	if err != nil {
		s.failOrder(ctx, order, err.Error())
		return true, err
	}

	// A success response missing credentials must never be persisted as
	// if the order were active.
	if !info.Complete() {
		provErr := provider.Permanent(adapter.Name(), "create server", provider.ErrIncompleteCredentials)
		s.failOrder(ctx, order, provErr.Error())
		return true, provErr
	}

	ipAddress := FormatIPAddress(order.EffectiveProvider(), order.OS, info.IPAddress)
	expiryDate := time.Now().Add(provisionValidity)

	if err := s.orders.CompleteProvisioning(ctx, order.ID, ipAddress, info.Username, info.Password, info.ServiceID, expiryDate); err != nil {
		// Upstream resource exists but the write failed; the lease stays
		// held until the watchdog releases it for a retry.
		return true, fmt.Errorf("complete provisioning: %w", err)
	}

	if err := s.logs.LogAction(ctx, order.ID, "auto_provision_completed", models.ProvisioningActive,
		fmt.Sprintf("Provisioned via %s, service %s, ip %s", adapter.Name(), info.ServiceID, ipAddress)); err != nil {
		s.logger.Warnf("log action for order %s: %v", order.ID, err)
	}

	order.IPAddress = &ipAddress
	order.Username = &info.Username
	if err := s.notifier.NotifyProvisioned(ctx, order); err != nil {
		s.logger.Warnf("notify success for order %s: %v", order.ID, err)
	}

	s.logger.Infof("order %s provisioned: service=%s ip=%s", order.ID, info.ServiceID, ipAddress)
	return true, nil
}

// failOrder records a failed attempt and emits the failure event.
// auto_provisioned stays set so the order shows as auto-failed.
func (s *ProvisionService) failOrder(ctx context.Context, order *models.Order, errMsg string) {
	s.logger.Warnf("provisioning failed for order %s: %s", order.ID, errMsg)

	if err := s.orders.FailProvisioning(ctx, order.ID, errMsg); err != nil {
		s.logger.Errorf("record failure for order %s: %v", order.ID, err)
	}
	if err := s.logs.LogAction(ctx, order.ID, "auto_provision_failed", models.ProvisioningFailed, errMsg); err != nil {
		s.logger.Warnf("log action for order %s: %v", order.ID, err)
	}
	if err := s.notifier.NotifyProvisionFailed(ctx, order, errMsg); err != nil {
		s.logger.Warnf("notify failure for order %s: %v", order.ID, err)
	}
}

// ListOrders returns all orders for the admin portal, credentials included
func (s *ProvisionService) ListOrders(ctx context.Context) ([]*models.OrderResponse, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]*models.OrderResponse, 0, len(orders))
	for _, o := range orders {
		responses = append(responses, models.NewOrderResponse(o, true))
	}
	return responses, nil
}

// ListUserOrders returns a user's own orders. Credentials are exposed only
// once an order is active.
func (s *ProvisionService) ListUserOrders(ctx context.Context, userID string) ([]*models.OrderResponse, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]*models.OrderResponse, 0, len(orders))
	for _, o := range orders {
		responses = append(responses, models.NewOrderResponse(o, o.Status == models.OrderStatusActive))
	}
	return responses, nil
}

// UpdateOrder applies a manual admin edit, bypassing the state machine
func (s *ProvisionService) UpdateOrder(ctx context.Context, req *models.UpdateOrderRequest) error {
	if err := s.orders.AdminUpdate(ctx, req); err != nil {
		return err
	}
	if err := s.logs.LogAction(ctx, req.OrderID, "manual_update", "", "Order fields updated by admin"); err != nil {
		s.logger.Warnf("log action for order %s: %v", req.OrderID, err)
	}
	return nil
}

// GetOrderLogs returns the action log for one order
func (s *ProvisionService) GetOrderLogs(ctx context.Context, orderID string, limit int) ([]*models.OrderLogResponse, error) {
	entries, err := s.logs.GetByOrderID(ctx, orderID, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]*models.OrderLogResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, models.NewOrderLogResponse(e))
	}
	return responses, nil
}

// FormatIPAddress applies the fixed Windows/Hostycare convention: RDP access
// goes through port 49965, stored as part of the IP. The formatter is
// idempotent; applying it to an already-suffixed IP changes nothing.
func FormatIPAddress(providerName, osName, ip string) string {
	if ip == "" {
		return ip
	}
	if providerName != models.ProviderHostycare {
		return ip
	}
	if !strings.Contains(strings.ToLower(osName), "windows") {
		return ip
	}
	if strings.Contains(ip, windowsRDPPortSuffix) {
		return ip
	}
	return ip + windowsRDPPortSuffix
}

// orderHostname falls back to a derived name when the customer did not
// request one
func orderHostname(o *models.Order) string {
	if o.Hostname != "" {
		return o.Hostname
	}
	return "vps-" + o.ID
}
