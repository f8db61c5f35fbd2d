package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels requests answered normally.
	OutcomeSuccess = "success"
	// OutcomeInvalid labels requests rejected for bad input.
	OutcomeInvalid = "invalid"
	// OutcomeError labels failed requests.
	OutcomeError = "error"

	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patient_dashboard",
			Name:      "requests_total",
			Help:      "Dashboard requests handled, partitioned by view and outcome.",
		},
		[]string{"view", "outcome"},
	)

	requestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "patient_dashboard",
			Name:      "request_seconds",
			Help:      "Time spent computing a dashboard view.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"view"},
	)

	filteredRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "patient_dashboard",
			Name:      "filtered_rows",
			Help:      "Rows remaining after applying filter criteria.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	datasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "patient_dashboard",
			Name:      "dataset_rows",
			Help:      "Rows in the loaded dataset.",
		},
	)

	exportBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "patient_dashboard",
			Name:      "export_bytes_total",
			Help:      "Bytes of CSV served through downloads and exports.",
		},
	)

	exportCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "patient_dashboard",
			Name:      "export_cache_total",
			Help:      "Export cache lookups partitioned by result.",
		},
		[]string{"result"},
	)
)

// Register attaches dashboard collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		requestsTotal,
		requestDurationSeconds,
		filteredRows,
		datasetRows,
		exportBytesTotal,
		exportCacheTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRequest records the duration and outcome label of one view computation.
func ObserveRequest(view string, duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError && label != OutcomeInvalid {
		label = OutcomeSuccess
	}
	requestsTotal.WithLabelValues(view, label).Inc()
	if duration < 0 {
		duration = 0
	}
	requestDurationSeconds.WithLabelValues(view).Observe(duration.Seconds())
}

// ObserveFilteredRows records the size of a filtered view.
func ObserveFilteredRows(n int) {
	filteredRows.Observe(float64(n))
}

// SetDatasetRows publishes the loaded dataset size.
func SetDatasetRows(n int) {
	datasetRows.Set(float64(n))
}

// ObserveExport records an export payload and how the cache answered it.
func ObserveExport(bytes int, cacheResult string) {
	exportBytesTotal.Add(float64(bytes))
	exportCacheTotal.WithLabelValues(cacheResult).Inc()
}
