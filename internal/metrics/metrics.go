package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holderledger_sync_runs_total",
			Help: "Synchronization runs by contract, mode and status",
		},
		[]string{"contract", "mode", "status"},
	)

	syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holderledger_sync_duration_seconds",
			Help:    "Duration of synchronization runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"contract", "mode"},
	)

	lastProcessedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holderledger_last_processed_block",
			Help: "Last block folded into the holder ledger",
		},
		[]string{"contract"},
	)

	holders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holderledger_holders",
			Help: "Number of wallets holding at least one token",
		},
		[]string{"contract"},
	)

	liveTokens = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holderledger_live_tokens",
			Help: "Number of live tokens in the holder ledger",
		},
		[]string{"contract"},
	)

	failedRanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holderledger_failed_block_ranges_total",
			Help: "Block ranges skipped after exhausting retries",
		},
		[]string{"contract"},
	)

	unappliedRanges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holderledger_unapplied_block_ranges",
			Help: "Skipped block ranges behind the checkpoint, cleared by a full rebuild",
		},
		[]string{"contract"},
	)

	staleLocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holderledger_stale_locks_cleared_total",
			Help: "Populate locks force-cleared as abandoned",
		},
		[]string{"contract"},
	)

	// System metrics
	uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "holderledger_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	componentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holderledger_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "holderledger_goroutines",
			Help: "Number of active goroutines",
		},
	)

	memoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "holderledger_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func SyncRunInc(contract, mode, status string) {
	syncRuns.WithLabelValues(contract, mode, status).Inc()
}

func SyncDuration(contract, mode string, d time.Duration) {
	syncDuration.WithLabelValues(contract, mode).Observe(d.Seconds())
}

func LastProcessedBlockSet(contract string, block uint64) {
	lastProcessedBlock.WithLabelValues(contract).Set(float64(block))
}

func LedgerSizeSet(contract string, holderCount, tokenCount int) {
	holders.WithLabelValues(contract).Set(float64(holderCount))
	liveTokens.WithLabelValues(contract).Set(float64(tokenCount))
}

func FailedRangesInc(contract string, count int) {
	failedRanges.WithLabelValues(contract).Add(float64(count))
}

func UnappliedRangesSet(contract string, count int) {
	unappliedRanges.WithLabelValues(contract).Set(float64(count))
}

func StaleLockInc(contract string) {
	staleLocks.WithLabelValues(contract).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	v := float64(0)
	if healthy {
		v = 1
	}
	componentHealth.WithLabelValues(component).Set(v)
}

// UpdateSystemMetrics refreshes the runtime gauges.
func UpdateSystemMetrics() {
	uptime.Set(time.Since(startTime).Seconds())
	goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	memoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	memoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
