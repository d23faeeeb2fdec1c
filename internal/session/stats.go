package session

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

// SessionStats combines a namespace footprint with its recorded activity.
type SessionStats struct {
	StorageStats
	LastActivity     *time.Time   `json:"lastActivity"`
	CreatedAt        *time.Time   `json:"createdAt"`
	IsCurrentSession bool         `json:"isCurrentSession"`
	IsAuthenticated  bool         `json:"isAuthenticated"`
	User             *UserSummary `json:"user"`
	AgeMinutes       *int64       `json:"ageMinutes"`
	InactiveMinutes  *int64       `json:"inactiveMinutes"`
}

// AllStats aggregates SessionStats over every session in the shared store.
type AllStats struct {
	TotalSessions         int            `json:"totalSessions"`
	CurrentSessionID      ID             `json:"currentSessionId"`
	Sessions              []SessionStats `json:"sessions"`
	TotalStorageUsedBytes int            `json:"totalStorageUsedBytes"`
	TotalStorageUsedKB    float64        `json:"totalStorageUsedKB"`
}

// SpaceReport is the outcome of EnsureStorageSpace.
type SpaceReport struct {
	WasNearLimit    bool `json:"wasNearLimit"`
	SessionsCleaned int  `json:"sessionsCleaned"`
	SpaceFreedBytes int  `json:"spaceFreedBytes"`
}

// AllSessionsStats reports every session, most recently active first.
// Sessions without recorded activity come last.
func (m *Manager) AllSessionsStats(ctx context.Context) (*AllStats, error) {
	ids, err := m.AllSessionIDs(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := &AllStats{
		TotalSessions:    len(ids),
		CurrentSessionID: m.id,
		Sessions:         make([]SessionStats, 0, len(ids)),
	}

	for _, id := range ids {
		entry, err := m.sessionStats(ctx, id, now)
		if err != nil {
			return nil, err
		}
		out.Sessions = append(out.Sessions, entry)
		out.TotalStorageUsedBytes += entry.TotalSizeBytes
	}

	sort.SliceStable(out.Sessions, func(i, j int) bool {
		a, b := out.Sessions[i].LastActivity, out.Sessions[j].LastActivity
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	out.TotalStorageUsedKB = toKB(out.TotalStorageUsedBytes)
	if m.metrics != nil {
		m.metrics.SetSessionsActive(out.TotalSessions)
		m.metrics.SetStorageBytes(out.TotalStorageUsedBytes)
	}
	return out, nil
}

func (m *Manager) sessionStats(ctx context.Context, id ID, now time.Time) (SessionStats, error) {
	st, err := m.storageFor(id)
	if err != nil {
		return SessionStats{}, err
	}
	base, err := st.Stats(ctx)
	if err != nil {
		return SessionStats{}, err
	}

	entry := SessionStats{
		StorageStats:     base,
		IsCurrentSession: id == m.id,
	}

	if raw, ok, err := st.Get(ctx, KeyLastActivity); err != nil {
		return SessionStats{}, err
	} else if ok {
		if at, valid := parseMillis(raw); valid {
			entry.LastActivity = &at
			entry.InactiveMinutes = minutesSince(now, at)
		}
	}
	if raw, ok, err := st.Get(ctx, KeyCreatedAt); err != nil {
		return SessionStats{}, err
	} else if ok {
		if at, valid := parseMillis(raw); valid {
			entry.CreatedAt = &at
			entry.AgeMinutes = minutesSince(now, at)
		}
	}
	if raw, ok, err := st.Get(ctx, KeyUserData); err != nil {
		return SessionStats{}, err
	} else if ok {
		if user, err := parseUser(raw); err == nil {
			entry.User = user.Summary()
		} else {
			m.logger.Debug("Skipping unreadable user data", zap.String("session_id", string(id)))
		}
	}

	entry.IsAuthenticated, err = hasToken(ctx, st)
	if err != nil {
		return SessionStats{}, err
	}
	return entry, nil
}

func minutesSince(now, then time.Time) *int64 {
	mins := int64(math.Round(now.Sub(then).Minutes()))
	return &mins
}

// EnsureStorageSpace probes the quota and, when near the limit, sweeps
// expired sessions and reports the space freed.
func (m *Manager) EnsureStorageSpace(ctx context.Context) (SpaceReport, error) {
	var report SpaceReport
	if !m.storage.IsNearQuotaLimit(ctx) {
		return report, nil
	}
	report.WasNearLimit = true
	m.logger.Warn("Storage near quota limit, sweeping expired sessions")

	before, err := m.AllSessionsStats(ctx)
	if err != nil {
		return report, err
	}
	report.SessionsCleaned, err = m.CleanExpiredSessions(ctx, DefaultExpiration)
	if err != nil {
		return report, err
	}
	after, err := m.AllSessionsStats(ctx)
	if err != nil {
		return report, err
	}

	report.SpaceFreedBytes = before.TotalStorageUsedBytes - after.TotalStorageUsedBytes
	m.logger.Info("Storage space freed",
		zap.Int("bytes", report.SpaceFreedBytes),
		zap.Float64("kb", toKB(report.SpaceFreedBytes)),
	)
	return report, nil
}
