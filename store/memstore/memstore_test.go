package memstore

import (
	"context"
	"testing"
	"time"

	"tutorhub/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan store.Change) store.Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		require.True(t, ok, "watch channel closed")
		return c
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
		return store.Change{}
	}
}

func assertSilent(t *testing.T, ch <-chan store.Change) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlesShareNamespace(t *testing.T) {
	ctx := context.Background()
	ns := NewNamespace()
	a, b := ns.Open(), ns.Open()

	require.NoError(t, a.Set(ctx, "k", "v1"))

	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)
	assert.NotEqual(t, a.Origin(), b.Origin())
}

func TestWatchSkipsOwnWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ns := NewNamespace()
	writer, reader := ns.Open(), ns.Open()

	own, err := writer.Watch(ctx)
	require.NoError(t, err)
	other, err := reader.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, writer.Set(ctx, "users", "[]"))

	c := receive(t, other)
	assert.Equal(t, "users", c.Key)
	assert.Equal(t, "", c.Old)
	assert.Equal(t, "[]", c.New)
	assert.Equal(t, writer.Origin(), c.Origin)

	assertSilent(t, own)
}

func TestWatchIgnoresUnchangedValue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ns := NewNamespace()
	writer, reader := ns.Open(), ns.Open()
	require.NoError(t, writer.Set(ctx, "k", "same"))

	ch, err := reader.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, writer.Set(ctx, "k", "same"))
	assertSilent(t, ch)

	require.NoError(t, writer.Delete(ctx, "k"))
	c := receive(t, ch)
	assert.Equal(t, "same", c.Old)
	assert.Equal(t, "", c.New)
}

func TestWatchClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New()

	ch, err := h.Watch(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	h := New()

	swapped, err := h.CompareAndSwap(ctx, "k", nil, "v1")
	require.NoError(t, err)
	assert.True(t, swapped)

	swapped, err = h.CompareAndSwap(ctx, "k", nil, "v2")
	require.NoError(t, err)
	assert.False(t, swapped, "key exists")

	stale := "v0"
	swapped, err = h.CompareAndSwap(ctx, "k", &stale, "v2")
	require.NoError(t, err)
	assert.False(t, swapped)

	current := "v1"
	swapped, err = h.CompareAndSwap(ctx, "k", &current, "v2")
	require.NoError(t, err)
	assert.True(t, swapped)

	v, _, _ := h.Get(ctx, "k")
	assert.Equal(t, "v2", v)
}

func TestKeysAndClose(t *testing.T) {
	ctx := context.Background()
	h := New()
	require.NoError(t, h.Set(ctx, "support_b", "[]"))
	require.NoError(t, h.Set(ctx, "support_a", "[]"))
	require.NoError(t, h.Set(ctx, "users", "[]"))

	keys, err := h.Keys(ctx, "support_")
	require.NoError(t, err)
	assert.Equal(t, []string{"support_a", "support_b"}, keys)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	_, _, err = h.Get(ctx, "users")
	assert.ErrorIs(t, err, store.ErrClosed)
}
