package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the rotation module: how often codes
// rotate and why scanner validations fail.
type Metrics struct {
	Rotations          prometheus.Counter
	Validations        prometheus.Counter
	ValidationFailures *prometheus.CounterVec
}

// New creates a Metrics instance with all rotation module metrics registered.
func New() *Metrics {
	return &Metrics{
		Rotations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "queueskip_rotations_total",
			Help: "Total number of credentials issued",
		}),
		Validations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "queueskip_validations_total",
			Help: "Total number of successful scanner validations",
		}),
		ValidationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "queueskip_validation_failures_total",
			Help: "Scanner validations rejected, by reason",
		}, []string{"reason"}),
	}
}

// IncrementRotation records one issued credential.
func (m *Metrics) IncrementRotation() {
	if m == nil {
		return
	}
	m.Rotations.Inc()
}

// IncrementValidation records one accepted scanner validation.
func (m *Metrics) IncrementValidation() {
	if m == nil {
		return
	}
	m.Validations.Inc()
}

// IncrementValidationFailure records one rejected validation with its reason.
func (m *Metrics) IncrementValidationFailure(reason string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(reason).Inc()
}
