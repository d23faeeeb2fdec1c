package tab

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/TabSessions/backend/internal/kv"
)

type filters struct {
	Promotion string   `json:"promotion"`
	Modules   []string `json:"modules"`
}

func TestValueDefaultsAndPersists(t *testing.T) {
	ctx := context.Background()
	tabStore := kv.NewMemory()
	env := openTab(t, newShared(), tabStore)

	v, err := NewValue(ctx, env, "filters", filters{Promotion: "all"})
	require.NoError(t, err)
	assert.Equal(t, "tab_"+env.SessionID().String()+"_filters", v.Key())
	assert.Equal(t, "all", v.Get().Promotion)

	require.NoError(t, v.Set(ctx, filters{Promotion: "2025", Modules: []string{"go"}}))

	raw, ok, err := tabStore.Get(ctx, v.Key())
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"promotion":"2025","modules":["go"]}`, raw)

	reloaded, err := NewValue(ctx, env, "filters", filters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, reloaded.Get().Modules)
}

func TestValueSiblingsObserveWrites(t *testing.T) {
	ctx := context.Background()
	env := openTab(t, newShared(), nil)

	first, err := NewValue(ctx, env, "page", 1)
	require.NoError(t, err)
	second, err := NewValue(ctx, env, "page", 1)
	require.NoError(t, err)

	var seen []int
	second.Subscribe(func(v int) { seen = append(seen, v) })

	require.NoError(t, first.Set(ctx, 3))
	require.NoError(t, first.Update(ctx, func(p int) int { return p + 1 }))

	assert.Equal(t, 4, second.Get())
	assert.Equal(t, []int{3, 4}, seen)

	second.Close()
	require.NoError(t, first.Set(ctx, 9))
	assert.Equal(t, 4, second.Get())
}

func TestValueNilRemovesKey(t *testing.T) {
	ctx := context.Background()
	tabStore := kv.NewMemory()
	env := openTab(t, newShared(), tabStore)

	v, err := NewValue[*filters](ctx, env, "draft", nil)
	require.NoError(t, err)

	require.NoError(t, v.Set(ctx, &filters{Promotion: "2024"}))
	_, ok, _ := tabStore.Get(ctx, v.Key())
	require.True(t, ok)

	require.NoError(t, v.Set(ctx, nil))
	_, ok, _ = tabStore.Get(ctx, v.Key())
	assert.False(t, ok)
	assert.Nil(t, v.Get())
}

func TestValueCorruptContentFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	tabStore := kv.NewMemory()
	env := openTab(t, newShared(), tabStore)

	require.NoError(t, tabStore.Set(ctx, ValueKey(env, "page"), "{oops"))

	v, err := NewValue(ctx, env, "page", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v.Get())
}

func TestValueClearResetsDefault(t *testing.T) {
	ctx := context.Background()
	env := openTab(t, newShared(), nil)

	v, err := NewValue(ctx, env, "tab", "overview")
	require.NoError(t, err)
	require.NoError(t, v.Set(ctx, "grades"))
	require.NoError(t, v.Clear(ctx))
	assert.Equal(t, "overview", v.Get())
}
