package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the pass ledger: issuance and terminal
// transitions, plus the redeem critical path duration.
type Metrics struct {
	Allocated      prometheus.Counter
	Redeemed       prometheus.Counter
	Transferred    prometheus.Counter
	RedeemDuration prometheus.Histogram
}

// New creates a Metrics instance with all pass module metrics registered.
func New() *Metrics {
	return &Metrics{
		Allocated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "queueskip_passes_allocated_total",
			Help: "Total number of passes issued by the allocation policy",
		}),
		Redeemed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "queueskip_passes_redeemed_total",
			Help: "Total number of passes redeemed",
		}),
		Transferred: promauto.NewCounter(prometheus.CounterOpts{
			Name: "queueskip_passes_transferred_total",
			Help: "Total number of passes transferred",
		}),
		RedeemDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "queueskip_redeem_duration_seconds",
			Help:    "Duration of redeem operations (scanner critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// AddAllocated records issued passes.
func (m *Metrics) AddAllocated(n int) {
	if m == nil {
		return
	}
	m.Allocated.Add(float64(n))
}

// IncrementRedeemed records one redemption.
func (m *Metrics) IncrementRedeemed() {
	if m == nil {
		return
	}
	m.Redeemed.Inc()
}

// IncrementTransferred records one transfer.
func (m *Metrics) IncrementTransferred() {
	if m == nil {
		return
	}
	m.Transferred.Inc()
}

// ObserveRedeem records the duration of a redeem operation. Call with
// time.Now() at the start of the operation.
func (m *Metrics) ObserveRedeem(start time.Time) {
	if m == nil {
		return
	}
	m.RedeemDuration.Observe(time.Since(start).Seconds())
}
