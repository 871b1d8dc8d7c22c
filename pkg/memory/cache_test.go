package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maestro-ai/maestro/pkg/models"
)

func cachedRecord(id string) models.MemoryRecord {
	return models.MemoryRecord{
		RecordID:    id,
		Key:         "key-" + id,
		Category:    models.CategoryPatterns,
		Data:        map[string]any{"n": id},
		AgentOrigin: models.AgentDeveloper,
	}
}

func TestCache_SetGet(t *testing.T) {
	c := NewCache(4, time.Minute)
	c.Set(cachedRecord("a"))

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "key-a", got.Key)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2, time.Minute)
	c.Set(cachedRecord("a"))
	c.Set(cachedRecord("b"))

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set(cachedRecord("c"))
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := NewCache(4, 10*time.Millisecond)
	c.Set(cachedRecord("a"))

	time.Sleep(25 * time.Millisecond)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(4, time.Minute)
	c.Set(cachedRecord("a"))
	c.Invalidate("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_GetReturnsCopy(t *testing.T) {
	c := NewCache(4, time.Minute)
	c.Set(cachedRecord("a"))

	got, ok := c.Get("a")
	require.True(t, ok)
	got.Data["n"] = "mutated"

	again, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", again.Data["n"])
}
