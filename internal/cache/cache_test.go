package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSet(t *testing.T) {
	c := New[string, int](10, time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, c.Len())
}

func TestExpiry(t *testing.T) {
	c := New[string, int](10, time.Minute)

	c.SetWithTTL("short", 1, 10*time.Millisecond)
	c.SetWithTTL("long", 2, time.Minute)

	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
	v, ok := c.Get("long")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestEvictsColdestAtCapacity(t *testing.T) {
	c := New[string, int](3, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Warm a and b so c is the coldest entry.
	c.Get("a")
	c.Get("a")
	c.Get("b")

	c.Set("d", 4)

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("c")
	assert.False(t, ok)
	for _, key := range []string{"a", "b", "d"} {
		_, ok := c.Get(key)
		assert.True(t, ok, "expected %q to survive eviction", key)
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	c := New[string, int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	v, _ = c.Get("a")
	assert.Equal(t, 10, v)
}

func TestHits(t *testing.T) {
	c := New[string, int](10, time.Minute)

	c.Set("a", 1)
	assert.Equal(t, int64(0), c.Hits("a"))

	c.Get("a")
	c.Get("a")
	assert.Equal(t, int64(2), c.Hits("a"))
	assert.Equal(t, int64(0), c.Hits("missing"))
}

func TestDeleteFunc(t *testing.T) {
	c := New[string, int](10, time.Minute)

	c.Set("doc1:a", 1)
	c.Set("doc1:b", 2)
	c.Set("doc2:a", 3)

	removed := c.DeleteFunc(func(k string) bool {
		return len(k) >= 4 && k[:4] == "doc1"
	})
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("doc2:a")
	assert.True(t, ok)
}

func TestCleanup(t *testing.T) {
	c := New[string, int](10, time.Minute)

	c.SetWithTTL("a", 1, time.Nanosecond)
	c.SetWithTTL("b", 2, time.Nanosecond)
	c.Set("c", 3)

	time.Sleep(time.Millisecond)

	assert.Equal(t, 2, c.Cleanup())
	assert.Equal(t, 1, c.Len())
}

func TestStartCleanupSweepsInBackground(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.SetWithTTL("a", 1, 10*time.Millisecond)
	c.SetWithTTL("b", 2, 10*time.Millisecond)

	stop := make(chan struct{})
	defer close(stop)
	c.StartCleanup(5*time.Millisecond, stop)

	require.Eventually(t, func() bool { return c.Len() == 0 },
		time.Second, 5*time.Millisecond)
}

func TestConcurrentAccessNeverExceedsCapacity(t *testing.T) {
	const maxSize = 32
	c := New[string, int](maxSize, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i%64)
				c.Set(key, i)
				c.Get(key)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), maxSize)
}

func TestClear(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
