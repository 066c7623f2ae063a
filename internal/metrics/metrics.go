package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orc"

// Metrics holds the production counters exported at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	CyclesExecuted     *prometheus.CounterVec
	CycleRejections    *prometheus.CounterVec
	ArrangementChanges *prometheus.CounterVec
	DailyCyclesLeft    *prometheus.GaugeVec
	ArmBalanceTorque   *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry together with the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		CyclesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_executed_total",
			Help:      "Molding cycles completed per machine.",
		}, []string{"machine"}),
		CycleRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_rejections_total",
			Help:      "Cycle requests refused, by reason.",
		}, []string{"machine", "reason"}),
		ArrangementChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arrangement_changes_total",
			Help:      "Arrangement changes charged against the daily quota.",
		}, []string{"machine"}),
		DailyCyclesLeft: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "daily_cycles_remaining",
			Help:      "Cycles left in the current production day.",
		}, []string{"machine"}),
		ArmBalanceTorque: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arm_balance_torque",
			Help:      "Net torque per arm; positive is right-heavy.",
		}, []string{"machine", "arm"}),
	}

	reg.MustRegister(
		m.CyclesExecuted,
		m.CycleRejections,
		m.ArrangementChanges,
		m.DailyCyclesLeft,
		m.ArmBalanceTorque,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Rejection reasons.
const (
	ReasonArrangement = "arrangement"
	ReasonDailyLimit  = "daily_limit"
)

func (m *Metrics) ObserveCycle(machineID string, success bool, reason string, remaining int) {
	if success {
		m.CyclesExecuted.WithLabelValues(machineID).Inc()
	} else {
		m.CycleRejections.WithLabelValues(machineID, reason).Inc()
	}
	m.DailyCyclesLeft.WithLabelValues(machineID).Set(float64(remaining))
}

func (m *Metrics) ObserveArrangementChange(machineID string, remaining int) {
	m.ArrangementChanges.WithLabelValues(machineID).Inc()
	m.DailyCyclesLeft.WithLabelValues(machineID).Set(float64(remaining))
}

func (m *Metrics) SetRemaining(machineID string, remaining int) {
	m.DailyCyclesLeft.WithLabelValues(machineID).Set(float64(remaining))
}

func (m *Metrics) SetArmTorque(machineID, armID string, torque float64) {
	m.ArmBalanceTorque.WithLabelValues(machineID, armID).Set(torque)
}
