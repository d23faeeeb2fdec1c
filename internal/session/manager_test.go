package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/TabSessions/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

func sampleUser() User {
	return User{
		Identifiant: "42",
		Nom:         "Diallo",
		Prenom:      "Awa",
		Role:        RoleFormateur,
		Email:       "awa.diallo@example.org",
		Extra:       map[string]any{"etablissement": "Lycée Nord"},
	}
}

func TestResolveSessionID(t *testing.T) {
	ctx := context.Background()
	tab := kv.NewMemory()

	m, err := NewManager(ctx, kv.NewMemory(), tab)
	require.NoError(t, err)
	assert.True(t, IsValidID(string(m.SessionID())))

	stored, _, _ := tab.Get(ctx, CurrentSessionKey)
	assert.Equal(t, string(m.SessionID()), stored)

	again, err := m.ResolveSessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.SessionID(), again)

	// A reload of the same tab keeps its id.
	reloaded, err := NewManager(ctx, kv.NewMemory(), tab)
	require.NoError(t, err)
	assert.Equal(t, m.SessionID(), reloaded.SessionID())
}

func TestResolveSessionIDReplacesInvalid(t *testing.T) {
	ctx := context.Background()
	tab := kv.NewMemory()
	require.NoError(t, tab.Set(ctx, CurrentSessionKey, "not-a-uuid"))

	m, err := NewManager(ctx, kv.NewMemory(), tab)
	require.NoError(t, err)
	assert.NotEqual(t, ID("not-a-uuid"), m.SessionID())

	stored, _, _ := tab.Get(ctx, CurrentSessionKey)
	assert.Equal(t, string(m.SessionID()), stored)
}

func TestDistinctTabsGetDistinctSessions(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	clock := newFakeClock()
	a := newTestManager(t, shared, clock)
	b := newTestManager(t, shared, clock)
	require.NotEqual(t, a.SessionID(), b.SessionID())

	require.NoError(t, a.SaveAuthData(ctx, "token-a", User{Nom: "A", Role: RoleDE}))
	require.NoError(t, b.SaveAuthData(ctx, "token-b", User{Nom: "B", Role: RoleEtudiant}))

	authA, err := a.AuthData(ctx)
	require.NoError(t, err)
	authB, err := b.AuthData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-a", authA.Token)
	assert.Equal(t, "token-b", authB.Token)

	require.NoError(t, a.ClearAuthData(ctx))
	authB, _ = b.AuthData(ctx)
	require.NotNil(t, authB)
	assert.Equal(t, "B", authB.User.Nom)
}

func TestAuthRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, kv.NewMemory(), newFakeClock())

	user := sampleUser()
	require.NoError(t, m.SaveAuthData(ctx, "jwt.token.value", user))

	got, err := m.AuthData(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "jwt.token.value", got.Token)
	assert.Equal(t, user, got.User)

	role, err := m.UserRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoleFormateur, role)
}

func TestSaveAuthDataKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := newTestManager(t, kv.NewMemory(), clock)

	require.NoError(t, m.SaveAuthData(ctx, "t1", sampleUser()))
	created, _, _ := m.Storage().Get(ctx, KeyCreatedAt)

	clock.Advance(time.Hour)
	require.NoError(t, m.SaveAuthData(ctx, "t2", sampleUser()))

	createdAgain, _, _ := m.Storage().Get(ctx, KeyCreatedAt)
	activity, _, _ := m.Storage().Get(ctx, KeyLastActivity)
	assert.Equal(t, created, createdAgain)
	assert.Equal(t, formatMillis(clock.Now()), activity)
}

type silentFeed struct{}

func (silentFeed) Publish(context.Context, kv.Change) error {
	return errors.New("payload string too long")
}

func (silentFeed) Subscribe(func(kv.Change)) (func(), error) { return func() {}, nil }

func TestSaveAuthDataSurvivesUnannouncedWrites(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	shared := kv.NewMemory()
	m := newTestManager(t, kv.NewView(shared, silentFeed{}, "tab"), clock)

	require.NoError(t, m.SaveAuthData(ctx, "t", sampleUser()))

	for _, key := range []string{KeyAuthToken, KeyUserData, KeyCreatedAt, KeyLastActivity} {
		ok, err := m.Storage().Has(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}

	clock.Advance(25 * time.Hour)
	other := newTestManager(t, shared, clock)
	removed, err := other.CleanExpiredSessions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestAuthDataRefreshesActivity(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := newTestManager(t, kv.NewMemory(), clock)
	require.NoError(t, m.SaveAuthData(ctx, "t", sampleUser()))

	clock.Advance(10 * time.Minute)
	_, err := m.AuthData(ctx)
	require.NoError(t, err)

	activity, _, _ := m.Storage().Get(ctx, KeyLastActivity)
	assert.Equal(t, formatMillis(clock.Now()), activity)
}

func TestPartialStateNullity(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, kv.NewMemory(), newFakeClock())

	require.NoError(t, m.Storage().Set(ctx, KeyAuthToken, "only-token"))

	got, err := m.AuthData(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	authenticated, err := m.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, authenticated, "presence check looks at the token only")

	role, err := m.UserRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, Role(""), role)
}

func TestCorruptUserDataYieldsNil(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, kv.NewMemory(), newFakeClock())

	require.NoError(t, m.Storage().Set(ctx, KeyAuthToken, "t"))
	require.NoError(t, m.Storage().Set(ctx, KeyUserData, "{not json"))

	got, err := m.AuthData(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClearAuthDataErasesNamespace(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, kv.NewMemory(), newFakeClock())

	require.NoError(t, m.SaveAuthData(ctx, "t", sampleUser()))
	require.NoError(t, m.Storage().Set(ctx, "preference", "x"))
	require.NoError(t, m.ClearAuthData(ctx))

	n, _ := m.Storage().Size(ctx)
	assert.Equal(t, 0, n)
	authenticated, _ := m.IsAuthenticated(ctx)
	assert.False(t, authenticated)
}

func TestMigrateExistingData(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	require.NoError(t, shared.Set(ctx, KeyAuthToken, "legacy"))
	require.NoError(t, shared.Set(ctx, KeyUserData, `{"nom":"Legacy","role":"DE"}`))

	m := newTestManager(t, shared, newFakeClock())

	migrated, err := m.MigrateExistingData(ctx)
	require.NoError(t, err)
	assert.True(t, migrated)

	_, ok, _ := shared.Get(ctx, KeyAuthToken)
	assert.False(t, ok)
	_, ok, _ = shared.Get(ctx, KeyUserData)
	assert.False(t, ok)

	got, _ := m.AuthData(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "legacy", got.Token)
	assert.Equal(t, RoleDE, got.User.Role)

	// Second run finds nothing to do.
	migrated, err = m.MigrateExistingData(ctx)
	require.NoError(t, err)
	assert.False(t, migrated)
}

func TestMigrateNeverOverwritesLiveSession(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	m := newTestManager(t, shared, newFakeClock())
	require.NoError(t, m.SaveAuthData(ctx, "live", sampleUser()))

	require.NoError(t, shared.Set(ctx, KeyAuthToken, "legacy"))
	require.NoError(t, shared.Set(ctx, KeyUserData, `{"nom":"Legacy"}`))

	migrated, err := m.MigrateExistingData(ctx)
	require.NoError(t, err)
	assert.False(t, migrated)

	got, _ := m.AuthData(ctx)
	assert.Equal(t, "live", got.Token)
	legacy, ok, _ := shared.Get(ctx, KeyAuthToken)
	assert.True(t, ok)
	assert.Equal(t, "legacy", legacy)
}

func TestMigrateUnreadableLegacyData(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	require.NoError(t, shared.Set(ctx, KeyAuthToken, "legacy"))
	require.NoError(t, shared.Set(ctx, KeyUserData, "garbage"))
	m := newTestManager(t, shared, newFakeClock())

	migrated, err := m.MigrateExistingData(ctx)
	require.NoError(t, err)
	assert.False(t, migrated)

	_, ok, _ := shared.Get(ctx, KeyUserData)
	assert.True(t, ok, "legacy keys stay when parsing fails")
}

func TestCleanExpiredSessions(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	clock := newFakeClock()
	m := newTestManager(t, shared, clock)
	now := clock.Now()

	seedSession(t, shared, idA, map[string]string{KeyAuthToken: "a", KeyLastActivity: formatMillis(now.Add(-10 * time.Minute))})
	seedSession(t, shared, idB, map[string]string{KeyAuthToken: "b", KeyLastActivity: formatMillis(now.Add(-23 * time.Hour))})
	seedSession(t, shared, idC, map[string]string{KeyAuthToken: "c", KeyLastActivity: formatMillis(now.Add(-25 * time.Hour))})

	cleaned, err := m.CleanExpiredSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	ids, err := m.AllSessionIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ID{idA, idB}, ids)
}

func TestSweepNeverTouchesCurrentSession(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	clock := newFakeClock()
	m := newTestManager(t, shared, clock)
	require.NoError(t, m.SaveAuthData(ctx, "mine", sampleUser()))

	before, _ := m.Storage().Size(ctx)
	clock.Advance(72 * time.Hour)

	cleaned, err := m.CleanExpiredSessions(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned)

	after, _ := m.Storage().Size(ctx)
	assert.Equal(t, before, after)
}

func TestForceCleanSession(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	m := newTestManager(t, shared, newFakeClock())
	require.NoError(t, m.SaveAuthData(ctx, "mine", sampleUser()))
	seedSession(t, shared, idA, map[string]string{KeyAuthToken: "a"})

	ok, err := m.ForceCleanSession(ctx, m.SessionID())
	require.NoError(t, err)
	assert.False(t, ok)
	authenticated, _ := m.IsAuthenticated(ctx)
	assert.True(t, authenticated)

	ok, err = m.ForceCleanSession(ctx, idA)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ForceCleanSession(ctx, idA)
	require.NoError(t, err)
	assert.False(t, ok, "nothing left to clean")
}

func TestAllSessionIDs(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	m := newTestManager(t, shared, newFakeClock())

	seedSession(t, shared, idA, map[string]string{KeyAuthToken: "a", KeyUserData: "{}"})
	seedSession(t, shared, idB, map[string]string{"note": "b"})
	require.NoError(t, shared.Set(ctx, "activeTabs", "[]"))
	require.NoError(t, shared.Set(ctx, "sync_"+string(idA)+"_counter", "1"))

	ids, err := m.AllSessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ID{idA, idB}, ids)
}

func TestAllSessionsStats(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	clock := newFakeClock()
	m := newTestManager(t, shared, clock)
	now := clock.Now()

	require.NoError(t, m.SaveAuthData(ctx, "mine", sampleUser()))
	seedSession(t, shared, idA, map[string]string{KeyAuthToken: "a", KeyLastActivity: formatMillis(now.Add(-2 * time.Hour))})
	seedSession(t, shared, idB, map[string]string{"note": "no activity"})
	seedSession(t, shared, idC, map[string]string{
		KeyLastActivity: formatMillis(now.Add(-30 * time.Minute)),
		KeyCreatedAt:    formatMillis(now.Add(-90 * time.Minute)),
		KeyUserData:     `{"nom":"Sow","prenom":"Ali","role":"ETUDIANT","email":"ali@example.org"}`,
	})

	stats, err := m.AllSessionsStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalSessions)
	assert.Equal(t, m.SessionID(), stats.CurrentSessionID)
	require.Len(t, stats.Sessions, 4)

	order := make([]ID, len(stats.Sessions))
	total := 0
	for i, s := range stats.Sessions {
		order[i] = s.SessionID
		total += s.TotalSizeBytes
	}
	assert.Equal(t, []ID{m.SessionID(), idC, idA, idB}, order)
	assert.Equal(t, total, stats.TotalStorageUsedBytes)
	assert.Equal(t, toKB(total), stats.TotalStorageUsedKB)

	current := stats.Sessions[0]
	assert.True(t, current.IsCurrentSession)
	assert.True(t, current.IsAuthenticated)
	require.NotNil(t, current.User)
	assert.Equal(t, "Diallo", current.User.Nom)

	c := stats.Sessions[1]
	assert.False(t, c.IsAuthenticated)
	require.NotNil(t, c.AgeMinutes)
	assert.Equal(t, int64(90), *c.AgeMinutes)
	require.NotNil(t, c.InactiveMinutes)
	assert.Equal(t, int64(30), *c.InactiveMinutes)
	assert.Equal(t, RoleEtudiant, c.User.Role)

	b := stats.Sessions[3]
	assert.Nil(t, b.LastActivity)
	assert.Nil(t, b.User)
}

func TestEnsureStorageSpace(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	now := clock.Now()

	t.Run("plenty of room", func(t *testing.T) {
		m := newTestManager(t, kv.NewMemory(), clock)
		report, err := m.EnsureStorageSpace(ctx)
		require.NoError(t, err)
		assert.Equal(t, SpaceReport{}, report)
	})

	t.Run("near the limit", func(t *testing.T) {
		shared := kv.NewMemory(kv.WithQuota(2000))
		m := newTestManager(t, shared, clock)
		seedSession(t, shared, idA, map[string]string{
			KeyLastActivity: formatMillis(now.Add(-48 * time.Hour)),
			"blob":          string(make([]byte, 900)),
		})

		report, err := m.EnsureStorageSpace(ctx)
		require.NoError(t, err)
		assert.True(t, report.WasNearLimit)
		assert.Equal(t, 1, report.SessionsCleaned)
		assert.Greater(t, report.SpaceFreedBytes, 900)
	})
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	shared := kv.NewMemory()
	m := newTestManager(t, shared, clock)

	require.NoError(t, m.SaveAuthData(ctx, "mine", sampleUser()))
	seedSession(t, shared, idA, map[string]string{KeyAuthToken: "a", KeyUserData: `{"nom":"A","custom":[1,2]}`})
	seedSession(t, shared, idB, map[string]string{"note": "not authenticated"})

	backup, err := m.CreateBackup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, backup.TotalSessions)
	assert.Len(t, backup.Sessions, 2)
	assert.NotContains(t, backup.Sessions, idB)

	fresh := kv.NewMemory()
	restorer := newTestManager(t, fresh, clock)
	restored, err := restorer.RestoreFromBackup(ctx, backup)
	require.NoError(t, err)
	assert.Equal(t, 2, restored)

	for _, id := range []ID{m.SessionID(), idA} {
		for _, key := range []string{KeyAuthToken, KeyUserData} {
			want, _, _ := shared.Get(ctx, Prefix(id)+key)
			got, ok, _ := fresh.Get(ctx, Prefix(id)+key)
			assert.True(t, ok)
			assert.Equal(t, want, got)
		}
	}
	_, ok, _ := fresh.Get(ctx, Prefix(idB)+"note")
	assert.False(t, ok)
}

func TestRestoreFromBackupValidation(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, kv.NewMemory(), newFakeClock())

	_, err := m.RestoreFromBackup(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidBackup)
	_, err = m.RestoreFromBackup(ctx, &Backup{})
	assert.ErrorIs(t, err, ErrInvalidBackup)

	restored, err := m.RestoreFromBackup(ctx, &Backup{Sessions: map[ID]*Snapshot{
		idA: {SessionID: idA, Data: map[string]string{KeyAuthToken: "a"}},
		idB: {SessionID: idB},
		"":  {Data: map[string]string{"x": "y"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
}

func TestRestoreFromBackupSkipsMalformedIDs(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	m := newTestManager(t, shared, newFakeClock())

	data := map[string]string{KeyAuthToken: "tok", KeyUserData: `{"nom":"Diallo"}`}
	restored, err := m.RestoreFromBackup(ctx, &Backup{Sessions: map[ID]*Snapshot{
		"not_a_uuid": {SessionID: "not_a_uuid", Data: data},
		"AAAAAAAA-AAAA-1AAA-8AAA-AAAAAAAAAAAA": {Data: data},
		idA: {SessionID: idA, Data: data},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	keys, err := shared.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{Prefix(idA) + KeyAuthToken, Prefix(idA) + KeyUserData}, keys)

	ids, err := m.AllSessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ID{idA}, ids)
}

func TestDashboardPath(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleDE, "/dashboard/de"},
		{RoleFormateur, "/dashboard/formateur"},
		{RoleEtudiant, "/dashboard/etudiant"},
		{"ADMIN", "/"},
		{"", "/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DashboardPath(tt.role), string(tt.role))
	}
}

func TestMarkClosed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := newTestManager(t, kv.NewMemory(), clock)

	require.NoError(t, m.MarkClosed(ctx))
	v, ok, _ := m.Storage().Get(ctx, KeyClosed)
	assert.True(t, ok)
	assert.Equal(t, formatMillis(clock.Now()), v)
}

func TestStartSweeper(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	m, err := NewManager(ctx, shared, kv.NewMemory())
	require.NoError(t, err)
	defer m.Close()

	seedSession(t, shared, idD, map[string]string{KeyLastActivity: formatMillis(time.Now().Add(-48 * time.Hour))})
	m.StartSweeper(10*time.Millisecond, time.Hour)

	require.Eventually(t, func() bool {
		ids, _ := m.AllSessionIDs(ctx)
		return len(ids) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStartSweeperNonPositiveIntervalStops(t *testing.T) {
	ctx := context.Background()
	shared := kv.NewMemory()
	m, err := NewManager(ctx, shared, kv.NewMemory())
	require.NoError(t, err)
	defer m.Close()

	m.StartSweeper(10*time.Millisecond, time.Hour)
	require.NotPanics(t, func() { m.StartSweeper(0, time.Hour) })
	require.NotPanics(t, func() { m.StartSweeper(-time.Second, time.Hour) })

	seedSession(t, shared, idD, map[string]string{KeyLastActivity: formatMillis(time.Now().Add(-48 * time.Hour))})
	time.Sleep(50 * time.Millisecond)

	ids, err := m.AllSessionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ID{idD}, ids)
}

func TestManagerMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	m, err := NewManager(ctx, kv.NewMemory(), kv.NewMemory(), WithMetrics(metrics))
	require.NoError(t, err)

	require.NoError(t, m.SaveAuthData(ctx, "t", sampleUser()))
	require.NoError(t, m.ClearAuthData(ctx))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsSaved))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionsCleared))
}

func TestUserJSONPreservesUnknownFields(t *testing.T) {
	encoded, err := encodeUser(sampleUser())
	require.NoError(t, err)

	decoded, err := parseUser(encoded)
	require.NoError(t, err)
	assert.Equal(t, sampleUser(), decoded)

	merged := decoded.Merge(User{Email: "new@example.org", Extra: map[string]any{"telephone": "0102"}})
	assert.Equal(t, "new@example.org", merged.Email)
	assert.Equal(t, "Diallo", merged.Nom)
	assert.Equal(t, "Lycée Nord", merged.Extra["etablissement"])
	assert.Equal(t, "0102", merged.Extra["telephone"])
	assert.Equal(t, "Awa Diallo", merged.FullName())
}

func TestUserExtraDecodesAsJSONValues(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, kv.NewMemory(), newFakeClock())

	jsonTyped := sampleUser()
	jsonTyped.Extra = map[string]any{
		"classe":  "T2",
		"annee":   float64(2025),
		"actif":   true,
		"modules": []any{"Go", "SQL"},
		"adresse": map[string]any{"ville": "Dakar"},
	}
	require.NoError(t, m.SaveAuthData(ctx, "t", jsonTyped))
	got, err := m.AuthData(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, jsonTyped, got.User)

	goTyped := sampleUser()
	goTyped.Extra = map[string]any{"annee": 2025}
	require.NoError(t, m.SaveAuthData(ctx, "t", goTyped))
	got, err = m.AuthData(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, float64(2025), got.User.Extra["annee"])
}
