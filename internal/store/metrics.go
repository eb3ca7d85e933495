package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holderledger_cache_hits_total",
			Help: "Cache reads served, by tier",
		},
		[]string{"tier"},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "holderledger_cache_misses_total",
			Help: "Cache reads that no tier could serve",
		},
	)

	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holderledger_cache_errors_total",
			Help: "Cache tier failures by tier and operation",
		},
		[]string{"tier", "op"},
	)

	degradedGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "holderledger_cache_degraded",
			Help: "1 while the remote cache tier is failing",
		},
	)

	stateWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holderledger_state_writes_total",
			Help: "Cache state file writes by outcome",
		},
		[]string{"status"},
	)
)
