package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the export pipeline.
type Metrics struct {
	ExportsTotal     *prometheus.CounterVec
	ExportDuration   *prometheus.HistogramVec
	RenderDuration   *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	TemplateLeftover *prometheus.CounterVec
}

// New registers the export metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the export metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ExportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certexport_exports_total",
			Help: "Certificate exports by template type and outcome",
		}, []string{"template_type", "outcome"}),
		ExportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certexport_export_duration_seconds",
			Help:    "End-to-end duration of certificate exports",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"template_type"}),
		RenderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certexport_render_duration_seconds",
			Help:    "Duration of document renders by outcome",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certexport_document_cache_lookups_total",
			Help: "Document cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
		TemplateLeftover: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certexport_template_leftover_total",
			Help: "Filled templates that still contained unknown placeholders",
		}, []string{"template_type"}),
	}
}

// IncExport records a finished export.
func (m *Metrics) IncExport(templateType, outcome string) {
	m.ExportsTotal.WithLabelValues(templateType, outcome).Inc()
}

// ObserveExport records the duration of an export.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveExport(templateType string, start time.Time) {
	m.ExportDuration.WithLabelValues(templateType).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveRender(outcome string, seconds float64) {
	m.RenderDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) IncCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) IncTemplateLeftover(templateType string) {
	m.TemplateLeftover.WithLabelValues(templateType).Inc()
}
