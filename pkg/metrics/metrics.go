// Package metrics provides Prometheus metrics collection for memory operations.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const subsystem = "memory"

// Metrics holds the Prometheus collectors for the memory subsystem.
type Metrics struct {
	reg *prometheus.Registry

	ContextBuildsCounter     prometheus.Counter
	ContextBuildHistogram    prometheus.Histogram
	MemoriesCreatedCounter   prometheus.Counter
	MemoriesMergedCounter    prometheus.Counter
	MemoriesEvictedCounter   prometheus.Counter
	EmbeddingFailuresCounter prometheus.Counter
	EmbeddingHistogram       prometheus.Histogram
	WritebackQueueGauge      prometheus.Gauge
	WritebackDroppedCounter  prometheus.Counter
	WritebackFailuresCounter prometheus.Counter
	TierDegradedCounter      *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all collectors registered
// on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
	}

	m.ContextBuildsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "context_builds_total",
		Help:      "Total context assembly operations",
	})
	m.ContextBuildHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "context_build_duration_seconds",
		Help:      "Context assembly duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1.0, 3.0, 5.0},
	})
	m.MemoriesCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "semantic_memories_created_total",
		Help:      "Semantic memories persisted as new records",
	})
	m.MemoriesMergedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "semantic_memories_merged_total",
		Help:      "Semantic memory creates folded into near-duplicates",
	})
	m.MemoriesEvictedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "semantic_memories_evicted_total",
		Help:      "Semantic memories deleted by capacity eviction",
	})
	m.EmbeddingFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "embedding_failures_total",
		Help:      "Failed embedding generation calls",
	})
	m.EmbeddingHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      "embedding_duration_seconds",
		Help:      "Embedding call duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1.0, 3.0, 5.0, 10.0},
	})
	m.WritebackQueueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: subsystem,
		Name:      "writeback_queue_depth",
		Help:      "Tasks currently waiting in the writeback queue",
	})
	m.WritebackDroppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "writeback_dropped_total",
		Help:      "Writeback tasks dropped because the queue was full",
	})
	m.WritebackFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "writeback_failures_total",
		Help:      "Writeback tasks that failed during processing",
	})
	m.TierDegradedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      "tier_degraded_total",
		Help:      "Requests where a memory tier was skipped due to a collaborator failure",
	}, []string{"tier"})

	m.reg.MustRegister(
		m.ContextBuildsCounter,
		m.ContextBuildHistogram,
		m.MemoriesCreatedCounter,
		m.MemoriesMergedCounter,
		m.MemoriesEvictedCounter,
		m.EmbeddingFailuresCounter,
		m.EmbeddingHistogram,
		m.WritebackQueueGauge,
		m.WritebackDroppedCounter,
		m.WritebackFailuresCounter,
		m.TierDegradedCounter,
	)

	return m
}

// Handler returns an HTTP handler serving the registry in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve runs a metrics-only HTTP server on the given port until ctx is done.
func (m *Metrics) Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// ObserveDuration records elapsed seconds since start on the given histogram.
func ObserveDuration(h prometheus.Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
