package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveOperation("share_entity", "success", 25*time.Millisecond)
	m.ObserveOperation("share_entity", "error", 5*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SharingOperationsTotal.WithLabelValues("share_entity", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SharingOperationsTotal.WithLabelValues("share_entity", "error")))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics(nil)
	m.CacheHitsTotal.Inc()
	m.ReconcilerOrphansSwept.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "sharing_access_cache_hits_total 1")
	assert.Contains(t, body, "sharing_reconciler_orphans_swept_total 3")
}
