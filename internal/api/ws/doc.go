// Package ws streams persistent-store changes over WebSocket.
//
// Each connection sees every write and removal made by any tab sharing the
// store, which makes it the quickest way to watch sessions, synced values
// and the tab registry move while the front-end runs.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - filter: Only forward keys starting with prefix ("" forwards everything)
//
// Message Types (Server → Client):
//   - system: Welcome carrying the connection and tab ids
//   - change: One kv.Change
//   - filtered: Filter acknowledged
//   - pong: Ping reply
//   - error: Invalid or unknown message
//
// Example Usage:
//
//	handler := ws.NewHandler(feed, env.ID().String(), metrics, logger)
//	router.GET("/debug/stream", handler.HandleConnection)
package ws
