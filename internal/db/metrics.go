package db

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	maintenanceRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "holderledger_db_maintenance_runs_total",
			Help: "Total number of disk cache maintenance runs",
		},
	)

	maintenanceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holderledger_db_maintenance_outcomes_total",
			Help: "Disk cache maintenance runs by outcome",
		},
		[]string{"status"},
	)

	maintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "holderledger_db_maintenance_duration_seconds",
			Help:    "Duration of disk cache maintenance runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	dbSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "holderledger_db_size_bytes",
			Help: "Disk cache database size including WAL files",
		},
	)
)
