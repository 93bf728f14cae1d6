package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCache_GetSetExpiry(t *testing.T) {
	c := newTTLCache(20*time.Millisecond, 10)
	c.set("k", "v")

	v, ok := c.get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.get("k")
	assert.False(t, ok)
}

func TestTTLCache_Flush(t *testing.T) {
	c := newTTLCache(time.Minute, 10)
	c.set("a", 1)
	c.set("b", 2)
	c.flush()

	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.False(t, ok)
}

func TestTTLCache_CapacityEvictsOldest(t *testing.T) {
	c := newTTLCache(time.Minute, 2)
	c.set("a", 1)
	c.set("b", 2)
	c.set("c", 3)

	// "a" was inserted first and should be evicted to make room for "c".
	_, ok := c.get("a")
	assert.False(t, ok)
	_, ok = c.get("b")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
}
