package observability

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a MetricFactory backed by a prometheus.Registerer.
// Dotted names are rewritten to prometheus form, so "fundme.fund.deployed"
// becomes the counter fundme_fund_deployed_total.
type PrometheusFactory struct {
	reg     prometheus.Registerer
	buckets []float64
}

// NewPrometheusFactory registers metrics with reg. A nil reg uses the
// default registerer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{reg: reg, buckets: prometheus.DefBuckets}
}

var nameReplacer = strings.NewReplacer(".", "_", "-", "_")

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: nameReplacer.Replace(name) + "_total",
		Help: "Total " + strings.ReplaceAll(name, ".", " ") + " events",
	})
	return register(f.reg, c)
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    nameReplacer.Replace(name),
		Help:    "Distribution of " + strings.ReplaceAll(name, ".", " "),
		Buckets: f.buckets,
	})
	return register(f.reg, h)
}

// register returns the already registered collector when the same metric
// is requested twice, which happens when several ledgers share a registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
