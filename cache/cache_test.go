package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestInMemoryCache_GetAfterInsert(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "k", testValue{Name: "spans", Count: 3}))

	var got testValue
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, testValue{Name: "spans", Count: 3}, got)
}

func TestInMemoryCache_GetMissing(t *testing.T) {
	c := NewInMemoryCache()

	var got testValue
	found, err := c.Get(context.Background(), "absent", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryCache_Remove(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "k", 1))
	require.NoError(t, c.Remove(ctx, "k"))

	var got int
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryCache_TTLExpiry(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.InsertWithTTL(ctx, "k", "v", 50*time.Millisecond))

	var got string
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found, "value should be readable before the TTL elapses")
	assert.Equal(t, "v", got)

	time.Sleep(100 * time.Millisecond)

	found, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found, "value should be evicted after the TTL elapses")
}

func TestInMemoryCache_SetTTL(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "k", "v"))
	require.NoError(t, c.SetTTL(ctx, "k", 30*time.Millisecond))

	time.Sleep(80 * time.Millisecond)

	var got string
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryCache_IncrementConcurrent(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Increment(ctx, "counter", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := c.Increment(ctx, "counter", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(n), final)
}

func TestInMemoryCache_IncrementCreatesAtZero(t *testing.T) {
	c := NewInMemoryCache()

	value, err := c.Increment(context.Background(), "fresh", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), value)
}

func TestInMemoryCache_LRUEviction(t *testing.T) {
	c := NewInMemoryCacheWithCapacity(2)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "a", 1))
	require.NoError(t, c.Insert(ctx, "b", 2))
	require.NoError(t, c.Insert(ctx, "c", 3))

	var got int
	found, err := c.Get(ctx, "a", &got)
	require.NoError(t, err)
	assert.False(t, found, "oldest entry should have been evicted")
}

func TestGetTyped(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, "k", testValue{Name: "x"}))

	got, err := GetTyped[testValue](ctx, c, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "x", got.Name)

	missing, err := GetTyped[testValue](ctx, c, "absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
