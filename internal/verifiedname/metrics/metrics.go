package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event sources.
const (
	SourceIDV        = "idv"
	SourceProctoring = "proctoring"
)

// Reconcile outcomes.
const (
	OutcomeCreated    = "created"
	OutcomeUpdated    = "updated"
	OutcomeNoop       = "noop"
	OutcomeIrrelevant = "irrelevant"
	OutcomeApproved   = "already_approved"
	OutcomeIncomplete = "incomplete"
	OutcomeError      = "error"
)

// Record creation origins.
const (
	OriginDirect     = "direct"
	OriginIDV        = "idv"
	OriginProctoring = "proctoring"
)

// Metrics provides observability for verified-name reconciliation.
type Metrics struct {
	EventsProcessed    *prometheus.CounterVec
	RecordsCreated     *prometheus.CounterVec
	StatusTransitions  *prometheus.CounterVec
	StaleTransitions   *prometheus.CounterVec
	NameMismatches     prometheus.Counter
	UnknownStatuses    *prometheus.CounterVec
	ReconcileDuration  *prometheus.HistogramVec
	EventRetries       *prometheus.CounterVec
	EventsDeadLettered *prometheus.CounterVec
	EventsDeduplicated *prometheus.CounterVec
	NotifyFallbacks    prometheus.Counter
}

// New creates the verified-name metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nameaffirm_events_processed_total",
			Help: "Status events reconciled, by source and outcome",
		}, []string{"source", "outcome"}),
		RecordsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nameaffirm_records_created_total",
			Help: "Verified-name records created, by origin",
		}, []string{"origin"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nameaffirm_status_transitions_total",
			Help: "Record status writes, by source and target status",
		}, []string{"source", "status"}),
		StaleTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nameaffirm_stale_transitions_total",
			Help: "Status changes skipped because they would move a record backward",
		}, []string{"source"}),
		NameMismatches: f.NewCounter(prometheus.CounterOpts{
			Name: "nameaffirm_name_mismatches_total",
			Help: "Proctoring events whose name differs from the user's approved verified name",
		}),
		UnknownStatuses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nameaffirm_unknown_statuses_total",
			Help: "Events carrying a status outside the known vocabulary",
		}, []string{"source"}),
		ReconcileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nameaffirm_reconcile_duration_seconds",
			Help:    "Duration of one event reconciliation including its transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"source"}),
		EventRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nameaffirm_event_retries_total",
			Help: "Handler retries, by topic",
		}, []string{"topic"}),
		EventsDeadLettered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nameaffirm_events_dead_lettered_total",
			Help: "Events abandoned after permanent failure or exhausted retries",
		}, []string{"topic"}),
		EventsDeduplicated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nameaffirm_events_deduplicated_total",
			Help: "Exact redeliveries skipped by the deduper",
		}, []string{"topic"}),
		NotifyFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "nameaffirm_notify_fallbacks_total",
			Help: "Change notifications logged instead of published while the breaker was open",
		}),
	}
}

func (m *Metrics) IncrementEvent(source, outcome string) {
	m.EventsProcessed.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) IncrementCreated(origin string) {
	m.RecordsCreated.WithLabelValues(origin).Inc()
}

func (m *Metrics) IncrementTransition(source, status string) {
	m.StatusTransitions.WithLabelValues(source, status).Inc()
}

func (m *Metrics) IncrementStale(source string) {
	m.StaleTransitions.WithLabelValues(source).Inc()
}

func (m *Metrics) IncrementMismatch() {
	m.NameMismatches.Inc()
}

func (m *Metrics) IncrementUnknownStatus(source string) {
	m.UnknownStatuses.WithLabelValues(source).Inc()
}

// ObserveReconcile records the duration of a reconciliation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveReconcile(source string, start time.Time) {
	m.ReconcileDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementRetry(topic string) {
	m.EventRetries.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncrementDeadLettered(topic string) {
	m.EventsDeadLettered.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncrementDeduplicated(topic string) {
	m.EventsDeduplicated.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncrementNotifyFallback() {
	m.NotifyFallbacks.Inc()
}
