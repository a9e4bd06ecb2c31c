package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the lesson service counters.
type Metrics struct {
	Validations         *prometheus.CounterVec
	RemoteValidations   *prometheus.CounterVec
	StepTransitions     *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	Completions         prometheus.Counter
	IgnoredSubmissions  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the counters on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lesson_validations_total",
			Help: "Local answer validations by outcome.",
		}, []string{"outcome"}),
		RemoteValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lesson_remote_validation_total",
			Help: "Remote validator calls by result.",
		}, []string{"result"}),
		StepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lesson_step_transitions_total",
			Help: "Step pointer advancements by destination step type.",
		}, []string{"type"}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lesson_persistence_failures_total",
			Help: "Failed writes to the message or progress store.",
		}, []string{"entity"}),
		Completions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lesson_completions_total",
			Help: "Lessons completed.",
		}),
		IgnoredSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lesson_ignored_submissions_total",
			Help: "Submissions dropped without processing by reason.",
		}, []string{"reason"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Validations, m.RemoteValidations, m.StepTransitions, m.PersistenceFailures, m.Completions, m.IgnoredSubmissions)
	return m
}

// NewNop returns metrics registered on a private registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
