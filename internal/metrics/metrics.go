package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collection result labels.
const (
	ResultCollected = "collected"
	ResultSkipped   = "already_collected"
	ResultInvalid   = "invalid"
	ResultFailed    = "failed"
)

// Collection holds the instruments of one collection run.
type Collection struct {
	registry *prometheus.Registry

	// Products processed per result.
	ProductsTotal *prometheus.CounterVec

	// Fetch+extract duration by outcome.
	FetchDuration *prometheus.HistogramVec

	// Unix seconds of the last finished run.
	LastRunTimestamp prometheus.Gauge

	// Observations appended by the last run.
	LastRunCollected prometheus.Gauge
}

// NewCollection registers the instruments on a private registry.
func NewCollection() *Collection {
	c := &Collection{
		registry: prometheus.NewRegistry(),
		ProductsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cpi_collection_products_total",
				Help: "Tracked products processed by a collection run, by result.",
			},
			[]string{"result"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cpi_fetch_duration_seconds",
				Help:    "Duration of page fetch plus price extraction.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"outcome"},
		),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpi_collection_last_run_timestamp",
			Help: "Timestamp (unix seconds) of the last finished collection run.",
		}),
		LastRunCollected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpi_collection_last_run_collected",
			Help: "Observations appended by the last collection run.",
		}),
	}
	c.registry.MustRegister(c.ProductsTotal, c.FetchDuration, c.LastRunTimestamp, c.LastRunCollected)
	return c
}

// IncResult counts one processed product.
func (c *Collection) IncResult(result string) {
	if c == nil {
		return
	}
	c.ProductsTotal.WithLabelValues(result).Inc()
}

// ObserveFetch records how long a fetch took.
func (c *Collection) ObserveFetch(start time.Time, outcome string) {
	if c == nil {
		return
	}
	c.FetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// RunFinished stamps the end of a run.
func (c *Collection) RunFinished(at time.Time, collected int) {
	if c == nil {
		return
	}
	c.LastRunTimestamp.Set(float64(at.Unix()))
	c.LastRunCollected.Set(float64(collected))
}

// Gatherer exposes the private registry.
func (c *Collection) Gatherer() prometheus.Gatherer {
	return c.registry
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (c *Collection) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
