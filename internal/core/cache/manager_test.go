package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type payload struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func newTestManager(t *testing.T, store Store, maxEntries int) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	m := NewManager(store, Options{
		DefaultTTL: time.Hour,
		MaxEntries: maxEntries,
		Now:        clock.Now,
	})
	t.Cleanup(func() { _ = m.Close() })
	return m, clock
}

func TestManager_SetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore(), 10)

	want := payload{Name: "Süt 1 L", Price: 32.5}
	require.NoError(t, Set(ctx, m, "https://example.com/arama?q=sut", want, 0))

	got, ok := Get[payload](ctx, m, "https://example.com/arama?q=sut")
	require.True(t, ok)
	assert.Equal(t, want, got)

	// 重複讀取結果一致
	again, ok := Get[payload](ctx, m, "https://example.com/arama?q=sut")
	require.True(t, ok)
	assert.Equal(t, got, again)
}

func TestManager_MissingKey(t *testing.T) {
	m, _ := newTestManager(t, NewMemoryStore(), 10)

	_, ok := Get[string](context.Background(), m, "missing")
	assert.False(t, ok)
	assert.Equal(t, int64(1), m.Stats(context.Background()).Misses)
}

func TestManager_ExpiryIsLogicalOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m, clock := newTestManager(t, store, 10)

	require.NoError(t, Set(ctx, m, "page", "<html></html>", time.Minute))

	clock.Advance(time.Minute)
	_, ok := Get[string](ctx, m, "page")
	assert.True(t, ok, "now - storedAt == ttl 仍然有效")

	clock.Advance(time.Millisecond)
	_, ok = Get[string](ctx, m, "page")
	assert.False(t, ok)

	// 過期紀錄仍在後端，直到清理
	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	removed, err := m.EvictStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err = store.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestManager_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager(t, NewMemoryStore(), 10)

	require.NoError(t, Set(ctx, m, "k", "first", 0))
	clock.Advance(time.Second)
	require.NoError(t, Set(ctx, m, "k", "second", 0))

	got, ok := Get[string](ctx, m, "k")
	require.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestManager_EvictStaleCapsToOldestFirst(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager(t, NewMemoryStore(), 3)

	for i := 0; i < 5; i++ {
		require.NoError(t, Set(ctx, m, fmt.Sprintf("k%d", i), i, 0))
		clock.Advance(time.Second)
	}

	removed, err := m.EvictStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 3, m.Stats(ctx).Entries)

	for i := 0; i < 2; i++ {
		_, ok := Get[int](ctx, m, fmt.Sprintf("k%d", i))
		assert.False(t, ok, "k%d 應該被淘汰", i)
	}
	for i := 2; i < 5; i++ {
		v, ok := Get[int](ctx, m, fmt.Sprintf("k%d", i))
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestManager_EvictStaleRemovesExpiredBeforeCapping(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager(t, NewMemoryStore(), 2)

	require.NoError(t, Set(ctx, m, "short-1", 1, time.Second))
	require.NoError(t, Set(ctx, m, "short-2", 2, time.Second))
	clock.Advance(time.Millisecond)
	require.NoError(t, Set(ctx, m, "long-1", 3, time.Hour))
	require.NoError(t, Set(ctx, m, "long-2", 4, time.Hour))

	clock.Advance(2 * time.Second)
	removed, err := m.EvictStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok := Get[int](ctx, m, "long-1")
	assert.True(t, ok)
	_, ok = Get[int](ctx, m, "long-2")
	assert.True(t, ok)
}

func TestManager_EvictStaleUnderCapIsNoop(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, NewMemoryStore(), 10)

	require.NoError(t, Set(ctx, m, "a", 1, 0))
	removed, err := m.EvictStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestManager_NilIsSafe(t *testing.T) {
	var m *Manager
	ctx := context.Background()

	_, ok := Get[string](ctx, m, "k")
	assert.False(t, ok)
	assert.ErrorIs(t, Set(ctx, m, "k", "v", 0), ErrDisabled)

	removed, err := m.EvictStale(ctx)
	assert.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, Stats{}, m.Stats(ctx))
	assert.NoError(t, m.Close())
}

func TestManager_CorruptFileIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	m, _ := newTestManager(t, store, 10)

	require.NoError(t, os.WriteFile(filepath.Join(dir, Key("broken")+".json"), []byte("{not json"), 0644))

	_, ok := Get[string](ctx, m, "broken")
	assert.False(t, ok)
	assert.Equal(t, int64(1), m.Stats(ctx).Errors)
}

func TestKey_Stable(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("a", "b"), Key("ab"))
	assert.Len(t, Key("https://example.com"), 64)
}
