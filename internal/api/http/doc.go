// Package http provides the gin handlers of the debug inspection API.
//
// Every handler works on the sessions visible to one tab: its own
// authentication state, the other sessions sharing the persistent store, and
// the backup bundle of all authenticated sessions.
//
// Endpoints:
//   - GET /health, GET /metrics, GET /metrics/json
//   - GET /debug/auth, POST /debug/activity
//   - POST /debug/login, POST /debug/password, POST /debug/logout
//   - GET /debug/sessions, POST /debug/sessions/clean, POST /debug/sessions/migrate
//   - DELETE /debug/sessions/:id
//   - POST /debug/storage/ensure
//   - GET /debug/backup, POST /debug/backup/restore
package http
