package admin

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randalmurphal/flowhost/pkg/flowgraph/app"
)

// statsCollector exports per-flow run counters of every live application.
type statsCollector struct {
	mgr       *app.Manager
	requests  *prometheus.Desc
	completed *prometheus.Desc
	errors    *prometheus.Desc
	halts     *prometheus.Desc
	inflight  *prometheus.Desc
	version   *prometheus.Desc
}

func newStatsCollector(mgr *app.Manager) *statsCollector {
	flowLabels := []string{"identity", "flow"}
	return &statsCollector{
		mgr:       mgr,
		requests:  prometheus.NewDesc("flowhost_flow_requests_total", "Runs started.", flowLabels, nil),
		completed: prometheus.NewDesc("flowhost_flow_completed_total", "Runs that finished ok.", flowLabels, nil),
		errors:    prometheus.NewDesc("flowhost_flow_errors_total", "Runs that finished with an error.", flowLabels, nil),
		halts:     prometheus.NewDesc("flowhost_flow_halts_total", "Runs that halted.", flowLabels, nil),
		inflight:  prometheus.NewDesc("flowhost_flow_inflight", "Runs in progress.", flowLabels, nil),
		version:   prometheus.NewDesc("flowhost_app_version", "Live version of each application.", []string{"identity"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.completed
	ch <- c.errors
	ch <- c.halts
	ch <- c.inflight
	ch <- c.version
}

// Collect implements prometheus.Collector.
func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, a := range c.mgr.List() {
		id := a.Identity()
		ch <- prometheus.MustNewConstMetric(c.version, prometheus.GaugeValue, float64(a.Version()), id)
		for flow, s := range a.Stats() {
			ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.Requests), id, flow)
			ch <- prometheus.MustNewConstMetric(c.completed, prometheus.CounterValue, float64(s.Completed), id, flow)
			ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Errors), id, flow)
			ch <- prometheus.MustNewConstMetric(c.halts, prometheus.CounterValue, float64(s.Halts), id, flow)
			ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(s.InFlight()), id, flow)
		}
	}
}
