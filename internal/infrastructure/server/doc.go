// Package server composes the debug server: it opens the configured shared
// store, hosts one tab on it with its authentication context and isolation
// wrapper, and serves the inspection API and change stream through gin.
package server
