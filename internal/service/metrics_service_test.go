package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

func scrape(t *testing.T, m *MetricsService) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetricsServiceRecordsDomainCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordRegistration("enroll", nil)
	m.RecordRegistration("enroll", appErrors.ErrCapacityExceeded)
	m.RecordRegistration("enroll", errors.New("boom"))
	m.RecordPayment("CHECK")
	m.RecordChangeRequest("approve")
	m.RecordMailJob(nil)

	body := scrape(t, m)
	assert.Contains(t, body, `registrations_total{operation="enroll",outcome="ok"} 1`)
	assert.Contains(t, body, `registrations_total{operation="enroll",outcome="CAPACITY_EXCEEDED"} 1`)
	assert.Contains(t, body, `registrations_total{operation="enroll",outcome="INTERNAL_ERROR"} 1`)
	assert.Contains(t, body, `payments_applied_total{source="CHECK"} 1`)
	assert.Contains(t, body, `change_requests_total{action="approve"} 1`)
	assert.Contains(t, body, `mail_jobs_total{result="sent"} 1`)
}

func TestMetricsServiceCacheRatio(t *testing.T) {
	m := NewMetricsService()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, "cache_hit_ratio 0.5")
	assert.Contains(t, body, "cache_hits_total 1")
	assert.Contains(t, body, "cache_misses_total 1")
}

func TestMetricsServiceHandler(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, 10*time.Millisecond)
	assert.Contains(t, scrape(t, m), `http_requests_total{method="GET",path="/health",status="200"} 1`)

	var nilMetrics *MetricsService
	rec := httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
