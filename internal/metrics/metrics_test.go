package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreIndependentPerInstance(t *testing.T) {
	a := New()
	b := New()

	a.SalesCompleted.WithLabelValues("CARD").Inc()
	a.SalesCompleted.WithLabelValues("CARD").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.SalesCompleted.WithLabelValues("CARD")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SalesCompleted.WithLabelValues("CARD")))
}

func TestHandlerExposesObservedRequests(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodGet, http.StatusOK, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `tirepos_http_requests_total{code="200",method="GET"} 1`), body)
}
