// Package main is the entry point of the tab session debug server.
//
// The server hosts one tab on the shared session store, the same way a
// browser tab of the school front-end would, and exposes its sessions,
// authentication state and the store's change stream for inspection.
//
// Architecture:
//
//	Front-end tabs ─┐
//	                ├─ shared store (memory | redis | postgres) ─ change feed
//	Debug server ───┘         │
//	                          └─ /debug/* and /debug/stream
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# In-memory store
//	./server -port 8000
//
//	# Shared redis store, console logs
//	STORE_BACKEND=redis REDIS_ADDR=localhost:6379 ./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
