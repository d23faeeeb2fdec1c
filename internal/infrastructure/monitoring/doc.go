/*
Package monitoring provides Prometheus metrics for sessions, tabs and the debug API.

# Overview

Collectors are registered on a caller-supplied registerer, so every process
or test can own an isolated registry.

# Features

- HTTP request metrics (latency, throughput, size)
- Backend API call metrics (duration, errors)
- Session lifecycle counters (saved, cleared, pruned, migrated, restored)
- Shared store footprint and tab registry size
- WebSocket connection metrics

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "api", "login")
	defer timer.Stop("success")
*/
package monitoring
