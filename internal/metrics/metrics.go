// Package metrics holds the Prometheus collectors of docrag.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docrag"

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			// provider
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			BudgetTokensRemaining,
			GenerationRequestsTotal,
			GenerationRequestDuration,
			GenerationTokensTotal,
			// pipeline
			IngestTotal,
			IngestDuration,
			IndexChunks,
			IndexDocuments,
			LoaderFilesTotal,
			QueryTotal,
			QueryStageDuration,
			// http
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
}

func gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

func histogram(name, help string, buckets []float64) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets})
}
