/*
Package session isolates independent user sessions inside one shared key-value store.

# Overview

Every tab resolves exactly one session id, a version 4 UUID kept in the tab's
private store under "current_session_id". Everything the session owns lives in
the shared store under the "session_<id>_" prefix, so tabs logged in as
different users never see each other's token.

# Records

An authenticated session holds:

	session_<id>_authToken     bearer token
	session_<id>_userData      JSON profile {identifiant, nom, prenom, role, email, ...}
	session_<id>_createdAt     epoch milliseconds, written once
	session_<id>_lastActivity  epoch milliseconds, refreshed on every read

# Lifecycle

	NewManager --> Idle --SaveAuthData--> Authenticated --ClearAuthData--> Idle

Sweeps started by one tab prune other sessions idle for longer than the
expiry window. A tab never prunes its own session.

# Usage

	mgr, err := session.NewManager(ctx, sharedStore, tabStore,
		session.WithLogger(logger),
		session.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	_, _ = mgr.MigrateExistingData(ctx)
	_, _ = mgr.CleanExpiredSessions(ctx, session.DefaultExpiration)
	auth, err := mgr.AuthData(ctx)
*/
package session
