package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GatewayFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plumenote_gateway_fetch_total",
		Help: "Collaboration state loads by result (hit, empty, invalid_session, error).",
	}, []string{"result"})

	GatewayStores = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plumenote_gateway_store_total",
		Help: "Collaboration state writes by result (ok, invalid_session, error).",
	}, []string{"result"})

	ExtractionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plumenote_text_extraction_failures_total",
		Help: "Stores that persisted a null text because extraction failed.",
	})

	GatewayStoreBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plumenote_gateway_store_bytes",
		Help:    "Size of persisted collaboration states.",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	})

	Snapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plumenote_snapshots_total",
		Help: "Snapshot requests by reason (created, no_change, note_not_found, error).",
	}, []string{"reason"})

	Restores = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plumenote_restores_total",
		Help: "Restore requests by result.",
	}, []string{"result"})

	CollabRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plumenote_collab_rooms",
		Help: "Open collaboration rooms.",
	})
)
