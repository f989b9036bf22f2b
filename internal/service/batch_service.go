package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/stackvps/reseller-platform/provision-service/internal/config"
	"github.com/stackvps/reseller-platform/provision-service/internal/models"
	"github.com/stackvps/reseller-platform/provision-service/internal/provider"
)

// BatchService provisions every eligible order in one administrator-triggered
// sweep, with bounded concurrency and transient-failure retries
type BatchService struct {
	cfg         *config.Config
	orders      OrderStore
	provisioner *ProvisionService
	logger      *logrus.Entry
}

// NewBatchService creates a new batch orchestrator
func NewBatchService(cfg *config.Config, orders OrderStore, provisioner *ProvisionService, logger *logrus.Logger) *BatchService {
	return &BatchService{
		cfg:         cfg,
		orders:      orders,
		provisioner: provisioner,
		logger:      logger.WithField("component", "batch-service"),
	}
}

// Run executes one batch provisioning sweep. Per-order failures are recorded
// on the orders and counted in the summary; only store-level failures abort
// the sweep and surface as an error.
func (s *BatchService) Run(ctx context.Context) (*models.BatchSummary, error) {
	// Recover leases abandoned by a crash or timed-out request before
	// sweeping, so those orders are eligible again.
	released, err := s.orders.ReleaseStaleProvisioning(ctx, time.Now().Add(-s.cfg.Provision.StaleAfter))
	if err != nil {
		return nil, fmt.Errorf("release stale provisioning: %w", err)
	}
	if released > 0 {
		s.logger.Warnf("released %d stale provisioning lease(s)", released)
	}

	orders, err := s.orders.LoadEligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("load eligible orders: %w", err)
	}

	// Re-check in memory: a concurrent manual edit may have changed an
	// order between the query and this sweep.
	eligible := orders[:0]
	for _, o := range orders {
		if models.NeedsProvisioning(o) {
			eligible = append(eligible, o)
		}
	}

	summary := &models.BatchSummary{}
	if len(eligible) == 0 {
		s.logger.Info("batch provision: no eligible orders")
		return summary, nil
	}

	s.logger.Infof("batch provision: %d eligible order(s), concurrency %d",
		len(eligible), s.cfg.Provision.Concurrency)

	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.cfg.Provision.Concurrency)

	for _, order := range eligible {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(o *models.Order) {
			defer wg.Done()
			defer func() { <-semaphore }()

			retries, err := s.provisionWithRetry(ctx, o)

			mu.Lock()
			summary.Retries += retries
			if err != nil {
				summary.Failed++
			} else {
				summary.Successful++
			}
			mu.Unlock()
		}(order)
	}

	wg.Wait()

	s.logger.Infof("batch provision complete: %d successful, %d failed, %d retries",
		summary.Successful, summary.Failed, summary.Retries)
	return summary, nil
}

// provisionWithRetry runs one order through the provisioner, retrying
// transient provider failures up to the configured cap. Permanent failures
// stop immediately.
func (s *BatchService) provisionWithRetry(ctx context.Context, order *models.Order) (int, error) {
	retries := 0

	operation := func() error {
		_, err := s.provisioner.ProvisionOrder(ctx, order.ID)
		if err == nil {
			return nil
		}
		if !provider.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, _ time.Duration) {
		retries++
		// Upstream creation is not idempotent, so a retry after a
		// transient failure can leave a duplicate resource.
		s.logger.Warnf("order %s attempt failed (%v), retrying (%d/%d)",
			order.ID, err, retries, s.cfg.Provision.RetryLimit)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(s.cfg.Provision.RetryDelay),
			uint64(s.cfg.Provision.RetryLimit),
		),
		ctx,
	)

	err := backoff.RetryNotify(operation, policy, notify)
	return retries, err
}
