package syncmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadDelete(t *testing.T) {
	m := &Map[string, int]{}

	m.Store("a", 1)
	m.Store("b", 2)

	value, ok := m.Load("a")
	require.True(t, ok)
	assert.Equal(t, 1, value)

	assert.Equal(t, 2, m.Count())

	// Overwriting does not inflate the count.
	m.Store("a", 3)
	assert.Equal(t, 2, m.Count())

	m.Delete("a")
	assert.Equal(t, 1, m.Count())

	_, ok = m.Load("a")
	assert.False(t, ok)

	// Deleting a missing key leaves the count alone.
	m.Delete("a")
	assert.Equal(t, 1, m.Count())
}

func TestLoadMissReturnsZero(t *testing.T) {
	m := &Map[string, *int]{}

	value, ok := m.Load("missing")
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestLoadAndDelete(t *testing.T) {
	m := &Map[string, int]{}
	m.Store("a", 1)

	value, ok := m.LoadAndDelete("a")
	require.True(t, ok)
	assert.Equal(t, 1, value)
	assert.Equal(t, 0, m.Count())

	_, ok = m.LoadAndDelete("a")
	assert.False(t, ok)
}

func TestLoadOrStore(t *testing.T) {
	m := &Map[string, int]{}

	actual, loaded := m.LoadOrStore("a", 1)
	assert.False(t, loaded)
	assert.Equal(t, 1, actual)

	actual, loaded = m.LoadOrStore("a", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, actual)

	assert.Equal(t, 1, m.Count())
}

func TestRange(t *testing.T) {
	m := &Map[int, string]{}
	m.Store(1, "one")
	m.Store(2, "two")

	seen := map[int]string{}

	m.Range(func(key int, value string) bool {
		seen[key] = value

		return true
	})

	assert.Equal(t, map[int]string{1: "one", 2: "two"}, seen)

	// Returning false stops iteration early.
	visits := 0

	m.Range(func(int, string) bool {
		visits++

		return false
	})

	assert.Equal(t, 1, visits)
}
