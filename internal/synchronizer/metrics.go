package synchronizer

import (
	"time"

	"github.com/goran-ethernal/HolderLedger/internal/metrics"
)

func metricsFor(contract, mode string, status Status, duration time.Duration) {
	if mode == "" {
		return
	}

	metrics.SyncRunInc(contract, mode, string(status))
	metrics.SyncDuration(contract, mode, duration)
}

func staleLockCleared(contract string) {
	metrics.StaleLockInc(contract)
}

func unappliedRangesLoaded(contract string, count int) {
	metrics.UnappliedRangesSet(contract, count)
}
