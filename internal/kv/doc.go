// Package kv defines the string key-value storage contract shared by tabs.
//
// Two kinds of store exist at runtime:
//   - Persistent: shared by every tab of an origin and survives restarts
//   - Tab: private to one tab and discarded when the tab closes
//
// Mutations of the persistent store are broadcast on a Feed so other tabs can
// react. A View binds a store and a feed to one tab: it stamps every write
// with the tab's source id and hides the tab's own notifications from it.
//
// Example Usage:
//
//	shared := kv.NewMemory()
//	feed := kv.NewMemoryFeed()
//	tabA := kv.NewView(shared, feed, "tab-a")
//	tabB := kv.NewView(shared, feed, "tab-b")
//	cancel, _ := tabB.OnChange(func(c kv.Change) { ... })
//	defer cancel()
//	_ = tabA.Set(ctx, "theme", "dark")
package kv
