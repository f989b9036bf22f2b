package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Reaper periodically releases provisioning leases that never recorded a
// completion, so a crash mid-attempt cannot leave an order stuck in
// 'provisioning' forever. Released orders become retriable.
type Reaper struct {
	ctx        context.Context
	cancel     context.CancelFunc
	orders     OrderStore
	interval   time.Duration
	staleAfter time.Duration
	logger     *logrus.Entry
}

// NewReaper creates a new stale-lease reaper
func NewReaper(orders OrderStore, interval, staleAfter time.Duration, logger *logrus.Logger) *Reaper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reaper{
		ctx:        ctx,
		cancel:     cancel,
		orders:     orders,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger.WithField("component", "provision-reaper"),
	}
}

// Start begins the periodic sweeps
func (r *Reaper) Start() {
	r.logger.Infof("starting provisioning reaper (interval %v, stale after %v)", r.interval, r.staleAfter)
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.ctx.Done():
				r.logger.Info("stopping provisioning reaper")
				return
			}
		}
	}()
}

// Stop gracefully stops the reaper
func (r *Reaper) Stop() {
	r.cancel()
}

func (r *Reaper) sweep() {
	released, err := r.orders.ReleaseStaleProvisioning(r.ctx, time.Now().Add(-r.staleAfter))
	if err != nil {
		r.logger.Errorf("release stale provisioning: %v", err)
		return
	}
	if released > 0 {
		r.logger.Warnf("released %d stale provisioning lease(s)", released)
	}
}
