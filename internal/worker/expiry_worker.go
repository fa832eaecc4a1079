package worker

import (
	"context"
	"sync"
	"time"

	"github.com/platbet/wallet-core/internal/observability"
	"github.com/platbet/wallet-core/internal/service"
	"go.uber.org/zap"
)

// ExpiryWorker periodically sweeps stale pending deposits to EXPIRED.
type ExpiryWorker struct {
	svc      *service.DepositService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewExpiryWorker constructs a worker with a default one-minute interval.
func NewExpiryWorker(svc *service.DepositService) *ExpiryWorker {
	return &ExpiryWorker{
		svc:      svc,
		interval: time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ExpiryWorker) WithInterval(interval time.Duration) *ExpiryWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs the sweep at the configured interval.
func (w *ExpiryWorker) Start(ctx context.Context) {
	zap.L().Info("expiry worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("expiry worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("expiry worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ExpiryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ExpiryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ExpiryWorker) runOnce(ctx context.Context) {
	if _, err := w.svc.SweepExpired(ctx); err != nil {
		observability.IncrementWorkerRun("deposit_expiry", "failed")
		zap.L().Error("deposit expiry sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("deposit_expiry", "success")
}
