package kv

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewCrossTabNotification(t *testing.T) {
	ctx := context.Background()
	shared := NewMemory()
	feed := NewMemoryFeed()
	tabA := NewView(shared, feed, "tab-a")
	tabB := NewView(shared, feed, "tab-b")

	var seenByA, seenByB []Change
	cancelA, err := tabA.OnChange(func(c Change) { seenByA = append(seenByA, c) })
	require.NoError(t, err)
	defer cancelA()
	cancelB, err := tabB.OnChange(func(c Change) { seenByB = append(seenByB, c) })
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, tabA.Set(ctx, "theme", "dark"))
	require.NoError(t, tabA.Set(ctx, "theme", "light"))
	require.NoError(t, tabA.Remove(ctx, "theme"))

	assert.Empty(t, seenByA, "a tab never observes its own writes")
	require.Len(t, seenByB, 3)

	assert.Nil(t, seenByB[0].OldValue)
	assert.Equal(t, "dark", *seenByB[0].NewValue)
	assert.Equal(t, "tab-a", seenByB[0].Source)

	assert.Equal(t, "dark", *seenByB[1].OldValue)
	assert.Equal(t, "light", *seenByB[1].NewValue)

	assert.True(t, seenByB[2].Removed())
	assert.Equal(t, "light", *seenByB[2].OldValue)
}

func TestViewClearAnnouncesEachKey(t *testing.T) {
	ctx := context.Background()
	shared := NewMemory()
	feed := NewMemoryFeed()
	writer := NewView(shared, feed, "w")
	reader := NewView(shared, feed, "r")

	require.NoError(t, writer.Set(ctx, "a", "1"))
	require.NoError(t, writer.Set(ctx, "b", "2"))

	var removed []string
	cancel, _ := reader.OnChange(func(c Change) {
		if c.Removed() {
			removed = append(removed, c.Key)
		}
	})
	defer cancel()

	require.NoError(t, writer.Clear(ctx))
	assert.ElementsMatch(t, []string{"a", "b"}, removed)

	n, _ := shared.Len(ctx)
	assert.Equal(t, 0, n)
}

func TestViewRemoveMissingKeyIsSilent(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed()
	writer := NewView(NewMemory(), feed, "w")

	calls := 0
	cancel, _ := feed.Subscribe(func(Change) { calls++ })
	defer cancel()

	require.NoError(t, writer.Remove(ctx, "ghost"))
	assert.Equal(t, 0, calls)
}

func TestViewWithoutFeed(t *testing.T) {
	ctx := context.Background()
	view := NewView(NewMemory(), nil, "solo")

	require.NoError(t, view.Set(ctx, "k", "v"))
	v, ok, err := view.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	cancel, err := view.OnChange(func(Change) {})
	require.NoError(t, err)
	cancel()
}

func TestMemoryFeedCancel(t *testing.T) {
	feed := NewMemoryFeed()
	cancel, err := feed.Subscribe(func(Change) {})
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, feed.Subscribers())
}

type brokenFeed struct{}

func (brokenFeed) Publish(context.Context, Change) error {
	return errors.New("payload string too long")
}

func (brokenFeed) Subscribe(func(Change)) (func(), error) {
	return func() {}, nil
}

func TestViewKeepsWriteWhenPublishFails(t *testing.T) {
	ctx := context.Background()
	shared := NewMemory()

	var reported []error
	view := NewView(shared, brokenFeed{}, "w", WithPublishErrors(func(err error) {
		reported = append(reported, err)
	}))

	require.NoError(t, view.Set(ctx, "session_x_userData", "{}"))
	require.NoError(t, view.Remove(ctx, "session_x_userData"))

	require.Len(t, reported, 2)
	var storageErr *StorageError
	require.ErrorAs(t, reported[0], &storageErr)
	assert.Equal(t, "publish", storageErr.Op)
	assert.Equal(t, "session_x_userData", storageErr.Key)

	n, err := shared.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
