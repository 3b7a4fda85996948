package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the PII core. All helper
// methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	CryptoFailures   *prometheus.CounterVec
	FieldsUnreadable *prometheus.CounterVec

	UsersRegistered     prometheus.Counter
	DuplicateRejections prometheus.Counter
	UsersSoftDeleted    prometheus.Counter
	UsersReactivated    prometheus.Counter

	ConsentEvents *prometheus.CounterVec
	AuditEvents   *prometheus.CounterVec

	Erasures      *prometheus.CounterVec
	Exports       prometheus.Counter
	PurgedUsers   prometheus.Counter
	PurgeFailures prometheus.Counter
	PurgeDuration prometheus.Histogram

	EndpointLatency *prometheus.HistogramVec
}

// New registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CryptoFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "piivault_crypto_failures_total",
			Help: "Crypto engine failures, labeled by operation",
		}, []string{"op"}),
		FieldsUnreadable: f.NewCounterVec(prometheus.CounterOpts{
			Name: "piivault_fields_unreadable_total",
			Help: "PII fields degraded to unreadable on read, labeled by field",
		}, []string{"field"}),
		UsersRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "piivault_users_registered_total",
			Help: "Total number of user records inserted",
		}),
		DuplicateRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "piivault_duplicate_rejections_total",
			Help: "Inserts or updates rejected by an HMAC index collision",
		}),
		UsersSoftDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "piivault_users_soft_deleted_total",
			Help: "Total number of soft deletions",
		}),
		UsersReactivated: f.NewCounter(prometheus.CounterOpts{
			Name: "piivault_users_reactivated_total",
			Help: "Total number of reactivations",
		}),
		ConsentEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "piivault_consent_events_total",
			Help: "Consent ledger appends, labeled by action",
		}, []string{"action"}),
		AuditEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "piivault_audit_events_total",
			Help: "Audit events recorded, labeled by type",
		}, []string{"type"}),
		Erasures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "piivault_erasures_total",
			Help: "Right-to-be-forgotten requests, labeled by outcome",
		}, []string{"outcome"}),
		Exports: f.NewCounter(prometheus.CounterOpts{
			Name: "piivault_exports_total",
			Help: "Data export bundles generated",
		}),
		PurgedUsers: f.NewCounter(prometheus.CounterOpts{
			Name: "piivault_purged_users_total",
			Help: "Users purged by the retention job",
		}),
		PurgeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "piivault_purge_failures_total",
			Help: "Per-user purge units that failed and will be retried next run",
		}),
		PurgeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "piivault_purge_duration_seconds",
			Help:    "Duration of a purge batch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		EndpointLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "piivault_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) IncCryptoFailure(op string) {
	if m == nil {
		return
	}
	m.CryptoFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) IncFieldUnreadable(field string) {
	if m == nil {
		return
	}
	m.FieldsUnreadable.WithLabelValues(field).Inc()
}

func (m *Metrics) IncUsersRegistered() {
	if m == nil {
		return
	}
	m.UsersRegistered.Inc()
}

func (m *Metrics) IncDuplicateRejections() {
	if m == nil {
		return
	}
	m.DuplicateRejections.Inc()
}

func (m *Metrics) IncSoftDeleted() {
	if m == nil {
		return
	}
	m.UsersSoftDeleted.Inc()
}

func (m *Metrics) IncReactivated() {
	if m == nil {
		return
	}
	m.UsersReactivated.Inc()
}

func (m *Metrics) IncConsentEvent(action string) {
	if m == nil {
		return
	}
	m.ConsentEvents.WithLabelValues(action).Inc()
}

func (m *Metrics) IncAuditEvent(eventType string) {
	if m == nil {
		return
	}
	m.AuditEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncErasure(outcome string) {
	if m == nil {
		return
	}
	m.Erasures.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncExports() {
	if m == nil {
		return
	}
	m.Exports.Inc()
}

func (m *Metrics) AddPurged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PurgedUsers.Add(float64(n))
}

func (m *Metrics) AddPurgeFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PurgeFailures.Add(float64(n))
}

func (m *Metrics) ObservePurgeDuration(seconds float64) {
	if m == nil {
		return
	}
	m.PurgeDuration.Observe(seconds)
}

// ObserveEndpointLatency records the latency for a given endpoint.
func (m *Metrics) ObserveEndpointLatency(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.EndpointLatency.WithLabelValues(endpoint).Observe(seconds)
}
