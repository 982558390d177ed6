package cache

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSet(t *testing.T) {
	c := New[string, int](10)
	c.Set("a", 1)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("b")
	assert.False(t, ok)

	assert.Equal(t, Stats{Len: 1, Capacity: 10, Hits: 1, Misses: 1}, c.Stats())
}

func TestDeleteClear(t *testing.T) {
	c := New[int, string](0)
	c.Set(1, "x")
	c.Set(2, "y")
	assert.True(t, c.Delete(1))
	assert.False(t, c.Delete(1))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Zero(t, c.Len())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, int](4)
	for i := range 4 {
		c.Set(i, i)
	}
	// Touch 0 so that 1 is the oldest.
	c.Get(0)
	c.Set(4, 4)

	// Five entries over a limit of four evict down to three.
	assert.Equal(t, 3, c.Len())
	_, ok := c.Get(0)
	assert.True(t, ok, "recently used entry survives")
	_, ok = c.Get(4)
	assert.True(t, ok, "newest entry survives")
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int](64)
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				key := strconv.Itoa(g*100 + i)
				c.Set(key, i)
				c.Get(key)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
