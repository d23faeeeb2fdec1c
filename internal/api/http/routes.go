package http

import "github.com/gin-gonic/gin"

// Register mounts the debug endpoints on router.
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/metrics", h.Metrics)
	router.GET("/metrics/json", h.MetricsJSON)

	debug := router.Group("/debug")
	debug.GET("/auth", h.Auth)
	debug.POST("/activity", h.ReportActivity)
	debug.POST("/login", h.SignIn)
	debug.POST("/password", h.ChangePassword)
	debug.POST("/logout", h.SignOut)

	debug.GET("/sessions", h.ListSessions)
	debug.POST("/sessions/clean", h.CleanSessions)
	debug.POST("/sessions/migrate", h.MigrateSessions)
	debug.DELETE("/sessions/:id", h.DeleteSession)

	debug.POST("/storage/ensure", h.EnsureStorage)

	debug.GET("/backup", h.Backup)
	debug.POST("/backup/restore", h.RestoreBackup)
}
