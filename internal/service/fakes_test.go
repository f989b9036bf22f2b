package service

import (
	"context"
	"sync"
	"time"

	"github.com/stackvps/reseller-platform/provision-service/internal/models"
	"github.com/stackvps/reseller-platform/provision-service/internal/provider"
	"github.com/stackvps/reseller-platform/provision-service/internal/repository"
)

// fakeStore is an in-memory OrderStore mirroring the repository's lease
// semantics
type fakeStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order

	loadEligibleErr error
	releaseCutoffs  []time.Time
}

func newFakeStore(orders ...*models.Order) *fakeStore {
	s := &fakeStore{orders: make(map[string]*models.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

// get returns a snapshot so assertions never race a concurrent attempt
func (s *fakeStore) get(id string) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil
	}
	snapshot := *o
	return &snapshot
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return o, nil
}

func (s *fakeStore) ListAll(_ context.Context) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out, nil
}

func (s *fakeStore) ListByUser(_ context.Context, userID string) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) LoadEligible(_ context.Context) ([]*models.Order, error) {
	if s.loadEligibleErr != nil {
		return nil, s.loadEligibleErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		if models.NeedsProvisioning(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) BeginProvisioning(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if o.HasProvisioningStatus(models.ProvisioningInProgress) {
		return nil, repository.ErrConflict
	}
	status := models.ProvisioningInProgress
	now := time.Now()
	o.ProvisioningStatus = &status
	o.AutoProvisioned = true
	o.ProvisioningError = nil
	o.ProvisioningStartedAt = &now
	return o, nil
}

func (s *fakeStore) CompleteProvisioning(_ context.Context, id, ipAddress, username, password, serviceID string, expiryDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	status := models.ProvisioningActive
	o.ProvisioningStatus = &status
	o.Status = models.OrderStatusActive
	o.IPAddress = &ipAddress
	o.Username = &username
	o.Password = &password
	if o.ProviderServiceID == nil {
		o.ProviderServiceID = &serviceID
	}
	o.ProvisioningError = nil
	o.ExpiryDate = &expiryDate
	o.ProvisioningStartedAt = nil
	return nil
}

func (s *fakeStore) FailProvisioning(_ context.Context, id, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	status := models.ProvisioningFailed
	o.ProvisioningStatus = &status
	o.ProvisioningError = &errMsg
	o.ProvisioningStartedAt = nil
	return nil
}

func (s *fakeStore) AdminUpdate(_ context.Context, req *models.UpdateOrderRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[req.OrderID]
	if !ok {
		return repository.ErrNotFound
	}
	if req.IPAddress != nil {
		o.IPAddress = req.IPAddress
	}
	if req.Username != nil {
		o.Username = req.Username
	}
	if req.Password != nil {
		o.Password = req.Password
	}
	if req.OS != nil {
		o.OS = *req.OS
	}
	if req.Status != nil {
		o.Status = *req.Status
	}
	if req.Provider != nil {
		o.Provider = *req.Provider
	}
	if req.ProvisioningStatus != nil {
		o.ProvisioningStatus = req.ProvisioningStatus
	}
	return nil
}

func (s *fakeStore) ReleaseStaleProvisioning(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseCutoffs = append(s.releaseCutoffs, cutoff)
	var released int64
	for _, o := range s.orders {
		if o.HasProvisioningStatus(models.ProvisioningInProgress) &&
			o.ProvisioningStartedAt != nil && o.ProvisioningStartedAt.Before(cutoff) {
			status := models.ProvisioningFailed
			msg := "provisioning attempt timed out and was released by the watchdog"
			o.ProvisioningStatus = &status
			o.ProvisioningError = &msg
			o.ProvisioningStartedAt = nil
			released++
		}
	}
	return released, nil
}

// fakeLogger is a no-op ActionLogger
type fakeLogger struct {
	mu      sync.Mutex
	entries []*models.OrderLog
}

func (l *fakeLogger) LogAction(_ context.Context, orderID, action, status, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, &models.OrderLog{
		OrderID: orderID, Action: action, Status: status, Message: message,
		CreatedAt: time.Now(),
	})
	return nil
}

func (l *fakeLogger) GetByOrderID(_ context.Context, orderID string, _ int) ([]*models.OrderLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.OrderLog
	for _, e := range l.entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeNotifier records terminal-state events
type fakeNotifier struct {
	mu        sync.Mutex
	succeeded []string
	failed    []string
}

func (n *fakeNotifier) NotifyProvisioned(_ context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.succeeded = append(n.succeeded, order.ID)
	return nil
}

func (n *fakeNotifier) NotifyProvisionFailed(_ context.Context, order *models.Order, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, order.ID)
	return nil
}

// fakeAdapter replays a scripted sequence of results and tracks concurrency
type fakeAdapter struct {
	mu      sync.Mutex
	name    string
	results []func() (*provider.ServerInfo, error)
	calls   int

	inFlight    int
	maxInFlight int
	delay       time.Duration
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) CreateServer(_ context.Context, _ provider.ServerSpec) (*provider.ServerInfo, error) {
	a.mu.Lock()
	idx := a.calls
	a.calls++
	a.inFlight++
	if a.inFlight > a.maxInFlight {
		a.maxInFlight = a.inFlight
	}
	a.mu.Unlock()

	if a.delay > 0 {
		time.Sleep(a.delay)
	}

	a.mu.Lock()
	a.inFlight--
	a.mu.Unlock()

	if idx >= len(a.results) {
		idx = len(a.results) - 1
	}
	return a.results[idx]()
}

func okResult(serviceID, ip string) func() (*provider.ServerInfo, error) {
	return func() (*provider.ServerInfo, error) {
		return &provider.ServerInfo{
			ServiceID: serviceID,
			IPAddress: ip,
			Username:  "root",
			Password:  "pw",
		}, nil
	}
}

func errResult(err error) func() (*provider.ServerInfo, error) {
	return func() (*provider.ServerInfo, error) { return nil, err }
}
