// Package metrics trzyma liczniki prometheusa dla synchronizacji i kolejki zapisów.
// Wszystkie metody są bezpieczne na nil (metryki wyłączone).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sfa"

type Metrics struct {
	syncPasses     *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	syncCoalesced  prometheus.Counter
	collRecords    *prometheus.GaugeVec
	collErrors     *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	outboxQueued   *prometheus.CounterVec
	outboxDeliver  *prometheus.CounterVec
	outboxFailed   *prometheus.CounterVec
	outboxAttempts *prometheus.CounterVec
	outboxPending  prometheus.Gauge
	online         prometheus.Gauge
}

// New rejestruje metryki na podanym registererze. nil = metryki wyłączone.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		syncPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sync_passes_total",
			Help: "Full sync passes by result (success, partial, failed).",
		}, []string{"result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sync_duration_seconds",
			Help:    "Duration of full sync passes.",
			Buckets: prometheus.DefBuckets,
		}),
		syncCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sync_coalesced_total",
			Help: "Sync requests that joined an in-flight pass.",
		}),
		collRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "collection_records",
			Help: "Records committed for a collection in the last successful sync.",
		}, []string{"collection"}),
		collErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "collection_sync_errors_total",
			Help: "Collection sync failures by reason.",
		}, []string{"collection", "reason"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "collection_fetch_seconds",
			Help:    "Duration of remote collection fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection"}),
		outboxQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_queued_total",
			Help: "Writes queued for later delivery.",
		}, []string{"collection"}),
		outboxDeliver: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_delivered_total",
			Help: "Writes confirmed by the server.",
		}, []string{"collection", "mode"}),
		outboxFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_failed_total",
			Help: "Queued writes moved to failed.",
		}, []string{"collection"}),
		outboxAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbox_attempts_total",
			Help: "Delivery attempts of queued writes.",
		}, []string{"collection"}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "outbox_pending",
			Help: "Writes waiting in the queue.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "online",
			Help: "1 when the remote is reachable.",
		}),
	}
	reg.MustRegister(
		m.syncPasses, m.syncDuration, m.syncCoalesced, m.collRecords, m.collErrors, m.fetchDuration,
		m.outboxQueued, m.outboxDeliver, m.outboxFailed, m.outboxAttempts, m.outboxPending, m.online,
	)
	return m
}

// ObserveSync – wynik całego przebiegu.
func (m *Metrics) ObserveSync(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncPasses.WithLabelValues(normalizeLabel(result)).Inc()
	m.syncDuration.Observe(d.Seconds())
}

func (m *Metrics) IncCoalesced() {
	if m == nil {
		return
	}
	m.syncCoalesced.Inc()
}

func (m *Metrics) ObserveFetch(collection string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(normalizeLabel(collection)).Observe(d.Seconds())
}

func (m *Metrics) SetCollectionRecords(collection string, n int) {
	if m == nil {
		return
	}
	m.collRecords.WithLabelValues(normalizeLabel(collection)).Set(float64(n))
}

func (m *Metrics) IncCollectionError(collection, reason string) {
	if m == nil {
		return
	}
	m.collErrors.WithLabelValues(normalizeLabel(collection), normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncQueued(collection string) {
	if m == nil {
		return
	}
	m.outboxQueued.WithLabelValues(normalizeLabel(collection)).Inc()
}

// IncDelivered – mode: "immediate" albo "drain".
func (m *Metrics) IncDelivered(collection, mode string) {
	if m == nil {
		return
	}
	m.outboxDeliver.WithLabelValues(normalizeLabel(collection), normalizeLabel(mode)).Inc()
}

func (m *Metrics) IncFailed(collection string) {
	if m == nil {
		return
	}
	m.outboxFailed.WithLabelValues(normalizeLabel(collection)).Inc()
}

func (m *Metrics) IncAttempt(collection string) {
	if m == nil {
		return
	}
	m.outboxAttempts.WithLabelValues(normalizeLabel(collection)).Inc()
}

func (m *Metrics) SetPending(n int64) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
