package session

import (
	"context"

	"go.uber.org/zap"
)

// MigrateExistingData moves a legacy single-session payload, stored under the
// bare authToken and userData keys, into the current session namespace.
// Live data is never overwritten: when the current session is already
// authenticated the legacy keys are left alone.
func (m *Manager) MigrateExistingData(ctx context.Context) (bool, error) {
	token, ok, err := m.persistent.Get(ctx, KeyAuthToken)
	if err != nil || !ok || token == "" {
		return false, err
	}
	raw, ok, err := m.persistent.Get(ctx, KeyUserData)
	if err != nil || !ok || raw == "" {
		return false, err
	}

	authenticated, err := m.IsAuthenticated(ctx)
	if err != nil || authenticated {
		return false, err
	}

	user, err := parseUser(raw)
	if err != nil {
		m.logger.Error("Legacy user data is unreadable, skipping migration", zap.Error(err))
		return false, nil
	}

	m.logger.Info("Migrating legacy authentication data",
		zap.String("session_id", string(m.id)),
	)
	if err := m.SaveAuthData(ctx, token, user); err != nil {
		return false, err
	}
	if err := m.persistent.Remove(ctx, KeyAuthToken); err != nil {
		return false, err
	}
	if err := m.persistent.Remove(ctx, KeyUserData); err != nil {
		return false, err
	}

	if m.metrics != nil {
		m.metrics.IncSessionsMigrated()
	}
	return true, nil
}
