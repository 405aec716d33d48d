package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/vehicledyn/pkg/core"
)

func TestMap_ZeroValue(t *testing.T) {
	var m Map[string, int]
	_, ok := m.Get("lap")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
	assert.Empty(t, m.Values())

	m.Delete("lap")
	m.Set("lap", 3)
	got, ok := m.Get("lap")
	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestCarCache(t *testing.T) {
	c := NewCarCache()
	c.Add(core.CarInfo{ID: 7, Name: "seven", Kind: "kart"})
	c.Add(core.CarInfo{ID: 2, Name: "two"})
	c.Add(core.CarInfo{ID: 5, Name: "five"})
	c.Add(core.CarInfo{ID: 7, Name: "seven again", Kind: "kart"})

	assert.Equal(t, 3, c.Len())
	got, ok := c.Get(7)
	require.True(t, ok)
	assert.Equal(t, "seven again", got.Name)

	ids := make([]uint, 0, 3)
	for _, car := range c.All() {
		ids = append(ids, car.ID)
	}
	assert.Equal(t, []uint{2, 5, 7}, ids)

	c.Delete(5)
	_, ok = c.Get(5)
	assert.False(t, ok)

	c.Reset()
	assert.Zero(t, c.Len())
	c.Add(core.CarInfo{ID: 1})
	assert.Equal(t, 1, c.Len(), "cache is usable after Reset")
}

func TestCarCache_Concurrent(t *testing.T) {
	c := NewCarCache()
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(core.CarInfo{ID: uint(i)})
			_, _ = c.Get(uint(i))
			_ = c.All()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, c.Len())
}

func TestRowCache(t *testing.T) {
	rows := NewRowCache()
	rows.Set(1, 100)
	rows.Set(2, 200)

	id, ok := rows.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint(100), id)

	rows.Reset()
	_, ok = rows.Get(2)
	assert.False(t, ok)
}

func TestCounter(t *testing.T) {
	var c Counter
	assert.Zero(t, c.Value())

	var wg sync.WaitGroup
	for range 1000 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, c.Value())

	c.Set(0)
	assert.Zero(t, c.Value())
}
