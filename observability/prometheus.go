package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a MetricFactory backed by a prometheus.Registerer.
type PrometheusFactory struct {
	reg prometheus.Registerer
}

// NewPrometheusFactory creates a factory registering metrics on reg.
// A nil reg uses the default registerer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &PrometheusFactory{reg: reg}
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name})
	f.reg.MustRegister(c)

	return c
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    name,
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	})
	f.reg.MustRegister(h)

	return h
}

var _ MetricFactory = (*PrometheusFactory)(nil)
