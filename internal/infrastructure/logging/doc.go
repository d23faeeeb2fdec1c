// Package logging provides structured logging using uber/zap.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Loggers are plain *zap.Logger values. ForTab and Component attach the
// tab, session and subsystem context that every tab-scoped log line carries.
//
// Example Usage:
//
//	logger := logging.NewOrNop(logging.DefaultConfig())
//	tabLog := logging.ForTab(logger, env.ID(), string(env.SessionID()))
//	tabLog.Info("Tab opened", zap.String("url", env.URL()))
package logging
