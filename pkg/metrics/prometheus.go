// Package metrics provides Prometheus metrics for the progression engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus metric the engine emits. It is constructed
// once in main and passed to the components that record; there is no
// package-level instance.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Stat pipeline
	statEventsRecorded prometheus.Counter
	statRecordLatency  prometheus.Histogram

	// Unlock flow
	unlocksCreated     *prometheus.CounterVec
	unlockDuplicates   prometheus.Counter
	evaluationsRun     prometheus.Counter
	unlockFlowLatency  prometheus.Histogram
	unlockFlowFailures prometheus.Counter

	// Titles
	titleEquips     prometheus.Counter
	titleClears     prometheus.Counter
	equipRejections *prometheus.CounterVec

	// Rarity
	rarityScans        prometheus.Counter
	rarityScanDuration prometheus.Histogram
	rarityTotalUsers   prometheus.Gauge
	rarityCacheHits    prometheus.Counter
	rarityCacheMisses  prometheus.Counter

	// Persistence health
	persistenceErrors *prometheus.CounterVec
}

// Option configures the Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithHistogramBuckets sets the latency histogram buckets.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// NewManager creates a metrics manager backed by its own registry, so the
// default Go collectors stay out of the scrape.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "progression",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.statEventsRecorded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "stat_events_recorded_total",
		Help:      "Total number of stat events applied to snapshots",
	})

	m.statRecordLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "stat_record_latency_milliseconds",
		Help:      "End-to-end latency of recording a stat event, unlock cascade included",
		Buckets:   m.histogramBuckets,
	})

	m.unlocksCreated = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "unlocks_created_total",
			Help:      "Total number of new unlock records, by rarity tier",
		},
		[]string{"rarity"},
	)

	m.unlockDuplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "unlock_duplicates_total",
		Help:      "Total number of unlock attempts absorbed by the ledger as already unlocked",
	})

	m.evaluationsRun = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "criteria_evaluations_total",
		Help:      "Total number of criteria evaluations performed",
	})

	m.unlockFlowLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "unlock_flow_latency_milliseconds",
		Help:      "Latency of the unlock flow per stat event",
		Buckets:   m.histogramBuckets,
	})

	m.unlockFlowFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "unlock_flow_failures_total",
		Help:      "Total number of unlock flows that failed before completion",
	})

	m.titleEquips = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "title_equips_total",
		Help:      "Total number of successful title equips",
	})

	m.titleClears = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "title_clears_total",
		Help:      "Total number of title clears",
	})

	m.equipRejections = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "title_equip_rejections_total",
			Help:      "Total number of rejected equip attempts, by reason",
		},
		[]string{"reason"},
	)

	m.rarityScans = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rarity_scans_total",
		Help:      "Total number of population rarity scans",
	})

	m.rarityScanDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "rarity_scan_duration_milliseconds",
		Help:      "Duration of population rarity scans",
		Buckets:   m.histogramBuckets,
	})

	m.rarityTotalUsers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "rarity_total_users",
		Help:      "Population size seen by the last rarity scan",
	})

	m.rarityCacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rarity_cache_hits_total",
		Help:      "Total number of rarity sheet cache hits",
	})

	m.rarityCacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rarity_cache_misses_total",
		Help:      "Total number of rarity sheet cache misses",
	})

	m.persistenceErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      "persistence_errors_total",
			Help:      "Total number of persistence collaborator errors, by store",
		},
		[]string{"store"},
	)
}

// RecordStatEvent increments the stat events counter.
func (m *Manager) RecordStatEvent() {
	m.statEventsRecorded.Inc()
}

// RecordStatLatency records the end-to-end stat recording latency.
func (m *Manager) RecordStatLatency(d time.Duration) {
	m.statRecordLatency.Observe(float64(d.Milliseconds()))
}

// RecordUnlock increments the unlock counter for a rarity tier.
func (m *Manager) RecordUnlock(rarity string) {
	m.unlocksCreated.WithLabelValues(rarity).Inc()
}

// RecordDuplicateUnlock increments the absorbed-duplicate counter.
func (m *Manager) RecordDuplicateUnlock() {
	m.unlockDuplicates.Inc()
}

// RecordEvaluations adds to the criteria evaluation counter.
func (m *Manager) RecordEvaluations(n int) {
	m.evaluationsRun.Add(float64(n))
}

// RecordUnlockFlowLatency records one unlock flow's duration.
func (m *Manager) RecordUnlockFlowLatency(d time.Duration) {
	m.unlockFlowLatency.Observe(float64(d.Milliseconds()))
}

// RecordUnlockFlowFailure increments the failed-flow counter.
func (m *Manager) RecordUnlockFlowFailure() {
	m.unlockFlowFailures.Inc()
}

// RecordTitleEquip increments the successful equip counter.
func (m *Manager) RecordTitleEquip() {
	m.titleEquips.Inc()
}

// RecordTitleClear increments the title clear counter.
func (m *Manager) RecordTitleClear() {
	m.titleClears.Inc()
}

// RecordEquipRejection increments the rejection counter for a reason
// ("not_unlocked" or "no_title").
func (m *Manager) RecordEquipRejection(reason string) {
	m.equipRejections.WithLabelValues(reason).Inc()
}

// RecordRarityScan records one completed population scan.
func (m *Manager) RecordRarityScan(totalUsers int64, d time.Duration) {
	m.rarityScans.Inc()
	m.rarityScanDuration.Observe(float64(d.Milliseconds()))
	m.rarityTotalUsers.Set(float64(totalUsers))
}

// RecordRarityCacheHit increments the cache hit counter.
func (m *Manager) RecordRarityCacheHit() {
	m.rarityCacheHits.Inc()
}

// RecordRarityCacheMiss increments the cache miss counter.
func (m *Manager) RecordRarityCacheMiss() {
	m.rarityCacheMisses.Inc()
}

// RecordPersistenceError increments the persistence error counter for a
// store ("postgres" or "redis").
func (m *Manager) RecordPersistenceError(store string) {
	m.persistenceErrors.WithLabelValues(store).Inc()
}

// Registry returns the manager's Prometheus registry for scraping.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}
