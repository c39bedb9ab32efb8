package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	m := NewMetrics()

	m.ContextBuildsCounter.Inc()
	m.MemoriesCreatedCounter.Add(2)
	m.WritebackQueueGauge.Set(5)
	m.TierDegradedCounter.WithLabelValues("semantic").Inc()
	ObserveDuration(m.ContextBuildHistogram, time.Now().Add(-10*time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "memory_context_builds_total 1")
	assert.Contains(t, string(body), "memory_semantic_memories_created_total 2")
	assert.Contains(t, string(body), "memory_writeback_queue_depth 5")
	assert.Contains(t, string(body), `memory_tier_degraded_total{tier="semantic"} 1`)
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics()
	b := NewMetrics()
	a.ContextBuildsCounter.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "memory_context_builds_total 0")
}
