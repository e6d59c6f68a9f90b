package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollectorCounters(t *testing.T) {
	c := New()

	c.CacheHit("sentiment")
	c.CacheHit("sentiment")
	c.CacheMiss("batch")
	c.CacheEviction("sentiment")
	c.RetryAttempt("rate_limited")
	c.RemoteCall("success", 120*time.Millisecond)
	c.RemoteCall("timeout", time.Second)
	c.BatchAnalyzed(3)
	c.HTTPRequest("POST", "/api/v1/analyze", 200)

	out := scrape(t, c)
	assert.Contains(t, out, `tubepulse_cache_hits_total{cache="sentiment"} 2`)
	assert.Contains(t, out, `tubepulse_cache_misses_total{cache="batch"} 1`)
	assert.Contains(t, out, `tubepulse_cache_evictions_total{cache="sentiment"} 1`)
	assert.Contains(t, out, `tubepulse_retry_attempts_total{reason="rate_limited"} 1`)
	assert.Contains(t, out, `tubepulse_remote_calls_total{outcome="timeout"} 1`)
	assert.Contains(t, out, `tubepulse_remote_call_duration_seconds_count 2`)
	assert.Contains(t, out, `tubepulse_batch_comments_count 1`)
	assert.Contains(t, out, `tubepulse_http_requests_total{method="POST",route="/api/v1/analyze",status="200"} 1`)
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.CacheHit("sentiment")

	assert.Contains(t, scrape(t, a), `tubepulse_cache_hits_total{cache="sentiment"} 1`)
	assert.NotContains(t, scrape(t, b), `tubepulse_cache_hits_total{cache="sentiment"}`)
}
