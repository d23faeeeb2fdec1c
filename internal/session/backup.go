package session

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Backup bundles snapshots of every authenticated session.
type Backup struct {
	CreatedAt     time.Time        `json:"createdAt"`
	TotalSessions int              `json:"totalSessions"`
	Sessions      map[ID]*Snapshot `json:"sessions"`
}

// CreateBackup snapshots every authenticated session. TotalSessions counts all
// sessions found, including the unauthenticated ones left out of the bundle.
func (m *Manager) CreateBackup(ctx context.Context) (*Backup, error) {
	stats, err := m.AllSessionsStats(ctx)
	if err != nil {
		return nil, err
	}

	backup := &Backup{
		CreatedAt:     m.now().UTC(),
		TotalSessions: stats.TotalSessions,
		Sessions:      make(map[ID]*Snapshot),
	}
	for _, s := range stats.Sessions {
		if !s.IsAuthenticated {
			continue
		}
		st, err := m.storageFor(s.SessionID)
		if err != nil {
			return nil, err
		}
		snap, err := st.Export(ctx)
		if err != nil {
			return nil, err
		}
		backup.Sessions[s.SessionID] = snap
	}
	return backup, nil
}

// RestoreFromBackup imports every snapshot of backup into its namespace and
// returns how many succeeded. Snapshots under ids that are not UUID v4 and
// failing snapshots are logged and skipped.
func (m *Manager) RestoreFromBackup(ctx context.Context, backup *Backup) (int, error) {
	if backup == nil || backup.Sessions == nil {
		return 0, ErrInvalidBackup
	}

	ids := make([]ID, 0, len(backup.Sessions))
	for id := range backup.Sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	restored := 0
	for _, id := range ids {
		if !IsValidID(string(id)) {
			m.logger.Error("Failed to restore session",
				zap.String("session_id", string(id)),
				zap.Error(ErrInvalidSessionID),
			)
			continue
		}
		st, err := m.storageFor(id)
		if err == nil {
			err = st.Import(ctx, backup.Sessions[id])
		}
		if err != nil {
			m.logger.Error("Failed to restore session",
				zap.String("session_id", string(id)),
				zap.Error(err),
			)
			continue
		}
		restored++
		m.logger.Debug("Session restored", zap.String("session_id", string(id)))
	}

	if m.metrics != nil && restored > 0 {
		m.metrics.AddSessionsRestored(restored)
	}
	m.logger.Info("Sessions restored from backup", zap.Int("restored", restored))
	return restored, nil
}
