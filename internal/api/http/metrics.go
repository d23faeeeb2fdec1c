package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MetricsSummary provides high-level figures derived from the collectors.
type MetricsSummary struct {
	TotalRequests     int64   `json:"totalRequests"`
	AverageLatencyMs  float64 `json:"averageLatencyMs"`
	ErrorRate         float64 `json:"errorRate"`
	ActiveSessions    int64   `json:"activeSessions"`
	ActiveTabs        int64   `json:"activeTabs"`
	ActiveConnections int64   `json:"activeConnections"`
	UptimeSeconds     float64 `json:"uptimeSeconds"`
}

// Metrics serves the Prometheus exposition format.
func (h *Handlers) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics disabled"})
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// MetricsJSON returns the summary of the collectors with the tab identity.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics disabled"})
		return
	}

	snap := h.metrics.Snapshot()
	summary := MetricsSummary{
		TotalRequests:     snap.TotalRequests,
		AverageLatencyMs:  snap.AvgDurationMs,
		ActiveSessions:    snap.ActiveSessions,
		ActiveTabs:        snap.ActiveTabs,
		ActiveConnections: snap.ActiveConnections,
		UptimeSeconds:     snap.UptimeSeconds,
	}
	if snap.TotalRequests > 0 {
		summary.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalRequests)
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp": h.now().UTC(),
		"tab":       h.tab.Info(),
		"summary":   summary,
	})
}
