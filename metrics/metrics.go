package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	searchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_search_latency_ms",
		Help:    "Latency of web search engine calls in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000},
	}, []string{"engine"})

	searchResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_search_results",
		Help:    "Number of results returned by a search engine",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"engine"})

	vectorLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_vector_search_latency_ms",
		Help:    "Latency of vector store searches in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
	})

	summaryChunks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_summary_chunks_total",
		Help: "Summarizer chunk outcomes",
	}, []string{"outcome"})

	actionDecision = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_action_total",
		Help: "Dispatcher action decisions",
	}, []string{"action"})

	relayUpstream = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_relay_total",
		Help: "Backend relay outcomes by mode and status class",
	}, []string{"mode", "status"})

	pdfPages = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_pdf_pages",
		Help:    "Page count of parsed PDF documents",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	// PersistedDocs counts document chunks written to the vector store.
	PersistedDocs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_persisted_chunks_total",
		Help: "Document chunks written to the vector store",
	})

	// PersistFailures counts background persistence runs that failed.
	PersistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_persist_failures_total",
		Help: "Background persistence runs that failed",
	})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(searchLatency, searchResults, vectorLatency,
			summaryChunks, actionDecision, relayUpstream, pdfPages,
			PersistedDocs, PersistFailures)
	})
}

// MustRegister registers all gateway collectors with the default registry.
// Safe to call more than once.
func MustRegister() {
	ensureRegistered()
}

// ObserveSearch records latency and result size for one engine call.
func ObserveSearch(engine string, start time.Time, results int) {
	ensureRegistered()
	searchLatency.WithLabelValues(engine).Observe(float64(time.Since(start).Milliseconds()))
	searchResults.WithLabelValues(engine).Observe(float64(results))
}

// ObserveVectorSearch records the latency of a vector store query.
func ObserveVectorSearch(start time.Time) {
	ensureRegistered()
	vectorLatency.Observe(float64(time.Since(start).Milliseconds()))
}

// IncSummaryChunk records a summarizer chunk outcome ("ok", "failed" or "empty").
func IncSummaryChunk(outcome string) {
	ensureRegistered()
	summaryChunks.WithLabelValues(outcome).Inc()
}

// IncAction records a dispatcher decision ("none", "search" or "pdf").
func IncAction(action string) {
	ensureRegistered()
	actionDecision.WithLabelValues(action).Inc()
}

// IncRelay records a backend relay outcome.
func IncRelay(mode, status string) {
	ensureRegistered()
	relayUpstream.WithLabelValues(mode, status).Inc()
}

// ObservePDFPages records the page count of a parsed document.
func ObservePDFPages(pages int) {
	ensureRegistered()
	pdfPages.Observe(float64(pages))
}

// Collectors exposes all collectors for registration with a custom registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		searchLatency, searchResults, vectorLatency, summaryChunks,
		actionDecision, relayUpstream, pdfPages, PersistedDocs, PersistFailures,
	}
}
