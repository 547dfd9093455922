package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "pressroom"

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	runDuration     prom.Histogram
	runOutcomes     *prom.CounterVec
	fileActions     *prom.CounterVec
	compileDuration *prom.HistogramVec
	reusable        prom.Gauge
}

// NewPrometheusRecorder creates the collectors and registers them with reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "export_duration_seconds",
			Help:      "Duration of export runs",
			Buckets:   prom.DefBuckets,
		}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "export_runs_total",
			Help:      "Export runs by outcome",
		}, []string{"outcome"}),
		fileActions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "export_files_total",
			Help:      "Files handled by action",
		}, []string{"action"}),
		compileDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Duration of individual compiler invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"compiler"}),
		reusable: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_reusable_records",
			Help:      "Ledger records that passed validation at the start of the last run",
		}),
	}
	reg.MustRegister(pr.runDuration, pr.runOutcomes, pr.fileActions, pr.compileDuration, pr.reusable)
	return pr
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome RunOutcome) {
	if p == nil {
		return
	}
	p.runOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncFileAction(action FileAction) {
	if p == nil {
		return
	}
	p.fileActions.WithLabelValues(string(action)).Inc()
}

func (p *PrometheusRecorder) ObserveCompileDuration(compiler string, d time.Duration) {
	if p == nil {
		return
	}
	p.compileDuration.WithLabelValues(compiler).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetReusableRecords(n int) {
	if p == nil {
		return
	}
	p.reusable.Set(float64(n))
}
