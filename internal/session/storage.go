package session

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

// KeyPrefix starts every namespaced session key.
const KeyPrefix = "session_"

const (
	probeKey  = "__test__"
	probeSize = 1024
)

// Prefix returns the namespace prefix for id.
func Prefix(id ID) string {
	return KeyPrefix + string(id) + "_"
}

// Snapshot is a full dump of one session namespace.
type Snapshot struct {
	SessionID  ID                `json:"sessionId"`
	Data       map[string]string `json:"data"`
	ExportedAt time.Time         `json:"exportedAt"`
}

// StorageStats describes the footprint of one session namespace.
// Sizes count characters of key plus value, keys unprefixed.
type StorageStats struct {
	SessionID      ID       `json:"sessionId"`
	KeyCount       int      `json:"keyCount"`
	TotalSizeBytes int      `json:"totalSizeBytes"`
	TotalSizeKB    float64  `json:"totalSizeKB"`
	Keys           []string `json:"keys"`
}

// Storage scopes every operation on a shared store to the session_<id>_ namespace.
type Storage struct {
	store  kv.Store
	id     ID
	prefix string
	now    func() time.Time
}

// NewStorage binds store to the namespace of id.
func NewStorage(store kv.Store, id ID) (*Storage, error) {
	return newStorage(store, id, time.Now)
}

func newStorage(store kv.Store, id ID, now func() time.Time) (*Storage, error) {
	if id == "" {
		return nil, ErrMissingSessionID
	}
	return &Storage{
		store:  store,
		id:     id,
		prefix: Prefix(id),
		now:    now,
	}, nil
}

// SessionID returns the bound id.
func (s *Storage) SessionID() ID {
	return s.id
}

func (s *Storage) key(k string) string {
	return s.prefix + k
}

// Set writes value under the namespaced key.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.key(key), value)
}

// Get reads the namespaced key.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	return s.store.Get(ctx, s.key(key))
}

// Remove deletes the namespaced key. Missing keys are ignored.
func (s *Storage) Remove(ctx context.Context, key string) error {
	return s.store.Remove(ctx, s.key(key))
}

// Clear deletes every key of this namespace and nothing else.
func (s *Storage) Clear(ctx context.Context) error {
	all, err := s.store.Keys(ctx)
	if err != nil {
		return err
	}

	var doomed []string
	for _, k := range all {
		if strings.HasPrefix(k, s.prefix) {
			doomed = append(doomed, k)
		}
	}
	for _, k := range doomed {
		if err := s.store.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the unprefixed names present in this namespace.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	all, err := s.store.Keys(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	for _, k := range all {
		if strings.HasPrefix(k, s.prefix) {
			keys = append(keys, strings.TrimPrefix(k, s.prefix))
		}
	}
	return keys, nil
}

// Has reports whether key exists in this namespace.
func (s *Storage) Has(ctx context.Context, key string) (bool, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}

// Size returns the number of keys in this namespace.
func (s *Storage) Size(ctx context.Context) (int, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Export dumps the namespace.
func (s *Storage) Export(ctx context.Context) (*Snapshot, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}

	data := make(map[string]string, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			data[k] = v
		}
	}

	return &Snapshot{
		SessionID:  s.id,
		Data:       data,
		ExportedAt: s.now().UTC(),
	}, nil
}

// Import writes every entry of snap into the namespace without clearing it first.
func (s *Storage) Import(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Data == nil {
		return ErrInvalidSnapshot
	}
	for k, v := range snap.Data {
		if err := s.Set(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports key count and character footprint.
func (s *Storage) Stats(ctx context.Context) (StorageStats, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return StorageStats{}, err
	}

	total := 0
	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return StorageStats{}, err
		}
		if ok {
			total += utf8.RuneCountInString(k) + utf8.RuneCountInString(v)
		}
	}

	return StorageStats{
		SessionID:      s.id,
		KeyCount:       len(keys),
		TotalSizeBytes: total,
		TotalSizeKB:    toKB(total),
		Keys:           keys,
	}, nil
}

// IsNearQuotaLimit writes and removes a 1KB probe. Any failure counts as near the limit.
func (s *Storage) IsNearQuotaLimit(ctx context.Context) bool {
	key := s.key(probeKey)
	if err := s.store.Set(ctx, key, strings.Repeat("x", probeSize)); err != nil {
		return true
	}
	if err := s.store.Remove(ctx, key); err != nil {
		return true
	}
	return false
}

// PruneIfStale clears the namespace when its last activity, or creation time
// when no activity was recorded, is older than maxAge.
func (s *Storage) PruneIfStale(ctx context.Context, maxAge time.Duration) (bool, error) {
	ts, ok, err := s.Get(ctx, KeyLastActivity)
	if err != nil {
		return false, err
	}
	if !ok {
		ts, ok, err = s.Get(ctx, KeyCreatedAt)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	at, valid := parseMillis(ts)
	if !valid || s.now().Sub(at) <= maxAge {
		return false, nil
	}
	if err := s.Clear(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// CloneInto copies this namespace into the namespace of target.
func (s *Storage) CloneInto(ctx context.Context, target ID) (*Storage, error) {
	dst, err := newStorage(s.store, target, s.now)
	if err != nil {
		return nil, err
	}

	snap, err := s.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("exporting %s: %w", s.id, err)
	}
	if err := dst.Import(ctx, snap); err != nil {
		return nil, fmt.Errorf("importing into %s: %w", target, err)
	}
	return dst, nil
}

func toKB(n int) float64 {
	return math.Round(float64(n)/1024*100) / 100
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, bool) {
	ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
