package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tcmtongue"

// Outcome labels for AnalysesTotal.
const (
	OutcomeSuccess       = "success"
	OutcomeGenerateError = "generate_error"
	OutcomeSaveError     = "save_error"
)

type Metrics struct {
	analyses         *prometheus.CounterVec
	generateDuration prometheus.Histogram
	savedImages      prometheus.Counter
}

// New registers the analysis metrics on reg. Passing a fresh registry per test
// avoids duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Tongue analyses handled, by outcome.",
		}, []string{"outcome"}),
		generateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generate_duration_seconds",
			Help:      "Latency of the remote generation call.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		savedImages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saved_images_total",
			Help:      "Uploaded images written to local storage.",
		}),
	}
	reg.MustRegister(m.analyses, m.generateDuration, m.savedImages)
	return m
}

func (m *Metrics) ObserveAnalysis(outcome string) {
	m.analyses.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGenerate(d time.Duration) {
	m.generateDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSavedImage() {
	m.savedImages.Inc()
}

// Analyses exposes the counter for assertions in tests.
func (m *Metrics) Analyses() *prometheus.CounterVec {
	return m.analyses
}

func (m *Metrics) SavedImages() prometheus.Counter {
	return m.savedImages
}
