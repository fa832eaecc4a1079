package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	depositCounter        *prometheus.CounterVec
	depositsExpiredTotal  prometheus.Counter
	withdrawalCounter     *prometheus.CounterVec
	webhookEventCounter   *prometheus.CounterVec
	reviewQueueGauge      prometheus.Gauge
	parkedEventsGauge     prometheus.Gauge
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		depositCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_deposit_events_total",
			Help: "Deposit lifecycle events",
		}, []string{"event"})

		depositsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallet_deposits_expired_total",
			Help: "Deposits swept to EXPIRED by the expiry worker",
		})

		withdrawalCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_withdrawal_events_total",
			Help: "Withdrawal lifecycle events",
		}, []string{"event"})

		webhookEventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_webhook_events_total",
			Help: "Gateway webhook processing outcomes",
		}, []string{"outcome"})

		reviewQueueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_withdrawal_review_queue_size",
			Help: "Current number of withdrawals waiting for manual review",
		})

		parkedEventsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_parked_webhook_events",
			Help: "Webhook events parked for retry because their reference is unknown",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			depositCounter,
			depositsExpiredTotal,
			withdrawalCounter,
			webhookEventCounter,
			reviewQueueGauge,
			parkedEventsGauge,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementDeposit(event string) {
	if depositCounter == nil {
		return
	}
	depositCounter.WithLabelValues(event).Inc()
}

func AddDepositsExpired(n int) {
	if depositsExpiredTotal == nil {
		return
	}
	depositsExpiredTotal.Add(float64(n))
}

func IncrementWithdrawal(event string) {
	if withdrawalCounter == nil {
		return
	}
	withdrawalCounter.WithLabelValues(event).Inc()
}

func IncrementWebhookEvent(outcome string) {
	if webhookEventCounter == nil {
		return
	}
	webhookEventCounter.WithLabelValues(outcome).Inc()
}

func SetReviewQueueSize(size int64) {
	if reviewQueueGauge == nil {
		return
	}
	reviewQueueGauge.Set(float64(size))
}

func SetParkedEvents(size int) {
	if parkedEventsGauge == nil {
		return
	}
	parkedEventsGauge.Set(float64(size))
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
