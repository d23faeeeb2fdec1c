package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIsolatedPerRegistry(t *testing.T) {
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	a.IncSessionsSaved()
	a.AddSessionsPruned(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.SessionsSaved))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.SessionsPruned))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SessionsSaved))
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(metrics))
	router.GET("/debug/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/debug/sessions/abc", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	count := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "/debug/sessions/:id", "404"))
	assert.Equal(t, 1.0, count)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
}

func TestHandlerExposesMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	metrics.SetTabsActive(2)

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "tabsessions_tabs_active 2"))
	assert.True(t, strings.Contains(body, "tabsessions_uptime_seconds"))
}

func TestTimer(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	timer := NewTimer(metrics, "api", "login")
	time.Sleep(time.Millisecond)
	timer.Stop("success")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ServiceCalls.WithLabelValues("api", "login", "success")))

	NewTimer(nil, "api", "login").Stop("success")
}
