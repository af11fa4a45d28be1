package prometheus

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authcore "github.com/callvault/authcore"
	"github.com/callvault/authcore/metrics/export/internaldefs"
)

var ErrNilSource = errors.New("nil metrics source")

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
	EmailDropped() uint64
}

// Collector reads an engine snapshot on every scrape. It implements
// prometheus.Collector.
type Collector struct {
	source metricsSource

	counterDescs []counterDesc
	histDescs    []histDesc
	auditDropped *prometheus.Desc
	emailDropped *prometheus.Desc
}

type counterDesc struct {
	id   authcore.MetricID
	desc *prometheus.Desc
}

type histDesc struct {
	id   authcore.MetricID
	desc *prometheus.Desc
}

// NewCollector creates a collector over the given engine.
func NewCollector(engine *authcore.Engine) (*Collector, error) {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource creates a collector over any snapshot source.
func NewCollectorFromSource(source metricsSource) (*Collector, error) {
	if source == nil {
		return nil, ErrNilSource
	}

	c := &Collector{
		source: source,
		auditDropped: prometheus.NewDesc("authcore_audit_dropped_total",
			"Audit events dropped due to dispatcher backpressure.", nil, nil),
		emailDropped: prometheus.NewDesc("authcore_email_dropped_total",
			"Email jobs dropped because the queue was full.", nil, nil),
	}

	for _, def := range internaldefs.CounterDefs {
		c.counterDescs = append(c.counterDescs, counterDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histDescs = append(c.histDescs, histDesc{
			id:   def.ID,
			desc: prometheus.NewDesc(def.Name, def.Help, nil, nil),
		})
	}

	return c, nil
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counterDescs {
		ch <- d.desc
	}
	for _, d := range c.histDescs {
		ch <- d.desc
	}
	ch <- c.auditDropped
	ch <- c.emailDropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.MetricsSnapshot()

	for _, d := range c.counterDescs {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue,
			float64(snapshot.Counters[d.id]))
	}

	for _, d := range c.histDescs {
		raw, ok := snapshot.Histograms[d.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))

		buckets := make(map[float64]uint64, len(internaldefs.HistogramBoundsSeconds))
		for i, bound := range internaldefs.HistogramBoundsSeconds {
			buckets[bound] = cumulative[i]
		}
		count := cumulative[len(cumulative)-1]

		// The engine snapshot carries no sum; export zero for a stable shape.
		ch <- prometheus.MustNewConstHistogram(d.desc, count, 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue,
		float64(c.source.AuditDropped()))
	ch <- prometheus.MustNewConstMetric(c.emailDropped, prometheus.CounterValue,
		float64(c.source.EmailDropped()))
}

// Handler returns a scrape endpoint backed by a private registry containing
// only this collector.
func (c *Collector) Handler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(c)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
