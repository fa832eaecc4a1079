package worker

import (
	"context"
	"sync"
	"time"

	"github.com/platbet/wallet-core/internal/observability"
	"github.com/platbet/wallet-core/internal/service"
	"go.uber.org/zap"
)

// ParkedEventWorker retries webhook events that arrived before their
// transaction existed locally.
type ParkedEventWorker struct {
	svc      *service.ReconciliationService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewParkedEventWorker constructs a worker with a default 30-second interval.
func NewParkedEventWorker(svc *service.ReconciliationService) *ParkedEventWorker {
	return &ParkedEventWorker{
		svc:      svc,
		interval: 30 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ParkedEventWorker) WithInterval(interval time.Duration) *ParkedEventWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and drains the parked-event list at the configured interval.
func (w *ParkedEventWorker) Start(ctx context.Context) {
	zap.L().Info("parked event worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("parked event worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("parked event worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ParkedEventWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ParkedEventWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ParkedEventWorker) runOnce(ctx context.Context) {
	applied, err := w.svc.RetryParked(ctx)
	if err != nil {
		observability.IncrementWorkerRun("parked_events", "failed")
		zap.L().Error("parked event retry run failed", zap.Error(err))
		return
	}
	if applied > 0 {
		zap.L().Info("replayed parked webhook events", zap.Int("applied", applied))
	}
	observability.IncrementWorkerRun("parked_events", "success")
}
