package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackvps/reseller-platform/provision-service/internal/models"
	"github.com/stackvps/reseller-platform/provision-service/internal/provider"
)

func newTestBatchService(store *fakeStore, adapters map[string]provider.Adapter) *BatchService {
	cfg := testConfig()
	svc := NewProvisionService(cfg, store, &fakeLogger{}, adapters, &fakeNotifier{}, quietLogger())
	return NewBatchService(cfg, store, svc, quietLogger())
}

func TestBatchRetriesTransientFailures(t *testing.T) {
	order := confirmedOrder("order-b1", models.ProviderHostycare, "Ubuntu 22.04 64")
	store := newFakeStore(order)
	adapter := &fakeAdapter{name: provider.NameHostycare, results: []func() (*provider.ServerInfo, error){
		errResult(provider.Transient(provider.NameHostycare, "create server", errors.New("upstream 503"))),
		errResult(provider.Transient(provider.NameHostycare, "create server", errors.New("upstream 503"))),
		okResult("hc-b1", "203.0.113.20"),
	}}
	batch := newTestBatchService(store, map[string]provider.Adapter{provider.NameHostycare: adapter})

	summary, err := batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.Retries)
	assert.Equal(t, 3, adapter.calls)
	assert.Equal(t, models.OrderStatusActive, store.get("order-b1").Status)
}

func TestBatchStopsOnPermanentFailure(t *testing.T) {
	order := confirmedOrder("order-b2", models.ProviderHostycare, "Ubuntu 22.04 64")
	store := newFakeStore(order)
	adapter := &fakeAdapter{name: provider.NameHostycare, results: []func() (*provider.ServerInfo, error){
		errResult(provider.Permanent(provider.NameHostycare, "create server", errors.New("invalid plan"))),
	}}
	batch := newTestBatchService(store, map[string]provider.Adapter{provider.NameHostycare: adapter})

	summary, err := batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Retries, "permanent failures must not be retried")
	assert.Equal(t, 1, adapter.calls)
	assert.True(t, store.get("order-b2").HasProvisioningStatus(models.ProvisioningFailed))
}

func TestBatchExhaustsRetryLimit(t *testing.T) {
	order := confirmedOrder("order-b3", models.ProviderHostycare, "Ubuntu 22.04 64")
	store := newFakeStore(order)
	transient := errResult(provider.Transient(provider.NameHostycare, "create server", errors.New("timeout")))
	adapter := &fakeAdapter{name: provider.NameHostycare, results: []func() (*provider.ServerInfo, error){transient}}
	batch := newTestBatchService(store, map[string]provider.Adapter{provider.NameHostycare: adapter})

	summary, err := batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Retries)
	assert.Equal(t, 3, adapter.calls, "initial attempt plus the retry cap")
}

func TestBatchMixedOutcomes(t *testing.T) {
	good := confirmedOrder("order-b4", models.ProviderHostycare, "Ubuntu 22.04 64")
	bad := confirmedOrder("order-b5", models.ProviderSmartVPS, "Ubuntu 22.04 64")
	store := newFakeStore(good, bad)
	hostycare := &fakeAdapter{name: provider.NameHostycare, results: []func() (*provider.ServerInfo, error){
		okResult("hc-b4", "203.0.113.21"),
	}}
	smartvps := &fakeAdapter{name: provider.NameSmartVPS, results: []func() (*provider.ServerInfo, error){
		errResult(provider.Permanent(provider.NameSmartVPS, "create server", errors.New("no stock"))),
	}}
	batch := newTestBatchService(store, map[string]provider.Adapter{
		provider.NameHostycare: hostycare,
		provider.NameSmartVPS:  smartvps,
	})

	summary, err := batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
}

func TestBatchSkipsIneligibleOrders(t *testing.T) {
	done := confirmedOrder("order-b6", models.ProviderHostycare, "Ubuntu 22.04 64")
	done.AutoProvisioned = true
	done.Status = models.OrderStatusActive
	pending := confirmedOrder("order-b7", models.ProviderHostycare, "Ubuntu 22.04 64")
	pending.Status = models.OrderStatusPending
	store := newFakeStore(done, pending)
	adapter := &fakeAdapter{name: provider.NameHostycare, results: []func() (*provider.ServerInfo, error){
		okResult("hc-b6", "203.0.113.22"),
	}}
	batch := newTestBatchService(store, map[string]provider.Adapter{provider.NameHostycare: adapter})

	summary, err := batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Successful)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, adapter.calls)
}

func TestBatchLoadErrorAbortsSweep(t *testing.T) {
	store := newFakeStore()
	store.loadEligibleErr = errors.New("connection refused")
	batch := newTestBatchService(store, map[string]provider.Adapter{})

	summary, err := batch.Run(context.Background())
	assert.Nil(t, summary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load eligible orders")
}

func TestBatchReleasesStaleLeases(t *testing.T) {
	order := confirmedOrder("order-b8", models.ProviderHostycare, "Ubuntu 22.04 64")
	inProgress := models.ProvisioningInProgress
	startedAt := time.Now().Add(-time.Hour)
	order.ProvisioningStatus = &inProgress
	order.ProvisioningStartedAt = &startedAt
	order.AutoProvisioned = true
	order.Provider = models.ProviderSmartVPS
	store := newFakeStore(order)
	adapter := &fakeAdapter{name: provider.NameSmartVPS, results: []func() (*provider.ServerInfo, error){
		okResult("sv-b8", "192.0.2.40"),
	}}
	batch := newTestBatchService(store, map[string]provider.Adapter{provider.NameSmartVPS: adapter})

	summary, err := batch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, store.releaseCutoffs, 1)
	assert.WithinDuration(t, time.Now().Add(-15*time.Minute), store.releaseCutoffs[0], 5*time.Second)

	// The released order is eligible again and gets reprovisioned in the
	// same sweep.
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, models.OrderStatusActive, store.get("order-b8").Status)
}

func TestBatchBoundsConcurrency(t *testing.T) {
	var orders []*models.Order
	for _, id := range []string{"order-c1", "order-c2", "order-c3", "order-c4", "order-c5"} {
		orders = append(orders, confirmedOrder(id, models.ProviderHostycare, "Ubuntu 22.04 64"))
	}
	store := newFakeStore(orders...)
	adapter := &fakeAdapter{
		name:    provider.NameHostycare,
		delay:   10 * time.Millisecond,
		results: []func() (*provider.ServerInfo, error){okResult("hc-c", "203.0.113.23")},
	}
	batch := newTestBatchService(store, map[string]provider.Adapter{provider.NameHostycare: adapter})

	summary, err := batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Successful)
	assert.LessOrEqual(t, adapter.maxInFlight, 2)
	assert.GreaterOrEqual(t, adapter.maxInFlight, 1)
}

func TestBatchEmptyStore(t *testing.T) {
	batch := newTestBatchService(newFakeStore(), map[string]provider.Adapter{})

	summary, err := batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &models.BatchSummary{}, summary)
}
