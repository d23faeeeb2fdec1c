/*
Package tab binds typed values to the stores one browser tab sees.

An Env is opened once per tab. It owns the tab's private store, a View on
the shared persistent store stamped with the tab id, and the session
Manager for the tab's session. Bindings are created against an Env:

	Value[T]   JSON value in the private store under tab_<sessionId>_<key>
	Synced[T]  JSON value in the shared store under sync_<sessionId>_<key>
	State      visibility, focus and debounced activity of the tab
	Registry   list of tabs announced under the current session

Writes are announced twice: on an in-process bus for other bindings of the
same tab, and through the shared store feed for other tabs. Closing the Env
closes every binding created from it.
*/
package tab
