// Package metrics holds the dispatcher's prometheus instrumentation, in
// the same register-at-init idiom as ghcache.go's outboundConcurrencyGauge
// and cachePartitionsCounter.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// PendingRequests tracks the live size of the request table.
	PendingRequests = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_pending_requests",
		Help: "Number of pending requests currently held in the request table.",
	})

	// CooldownsActive tracks how many client/queue cooldown entries are
	// currently unexpired, summed across all clients.
	CooldownsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_active_cooldowns",
		Help: "Number of unexpired client/queue cooldown entries.",
	})

	// CacheResult counts cache store lookups by outcome: hit or miss. An
	// entry that fails the freshness check counts as a miss; read errors
	// are not counted.
	CacheResult = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_cache_result_total",
		Help: "Outcome of cache store reads, partitioned by queue.",
	}, []string{"queue", "result"})

	// Dispatches counts requests handed out by the scheduler, partitioned
	// by whether this was the first attempt or a timeout-driven retry.
	Dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_dispatched_total",
		Help: "Requests handed to a fetcher client by the scheduler.",
	}, []string{"queue", "retry"})

	// Delivered counts response deliveries, partitioned by upstream status.
	Delivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_delivered_total",
		Help: "Responses delivered back to the dispatcher, partitioned by status.",
	}, []string{"queue", "status"})

	// WebhookAttempts counts webhook POST attempts, partitioned by outcome.
	WebhookAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_webhook_attempts_total",
		Help: "Webhook delivery attempts, partitioned by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		PendingRequests,
		CooldownsActive,
		CacheResult,
		Dispatches,
		Delivered,
		WebhookAttempts,
	)
}
