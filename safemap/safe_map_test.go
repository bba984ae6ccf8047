package safemap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSafeMap(t *testing.T) {
	m := NewSafeMap[uint32, string]()
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())
}

func TestSafeMap_StoreLoad(t *testing.T) {
	m := NewSafeMap[uint32, string]()

	t.Run("stored value is returned", func(t *testing.T) {
		m.Store(1, "conn-1")
		v, ok := m.Load(1)
		assert.True(t, ok)
		assert.Equal(t, "conn-1", v)
	})

	t.Run("store replaces", func(t *testing.T) {
		m.Store(1, "conn-1b")
		v, _ := m.Load(1)
		assert.Equal(t, "conn-1b", v)
	})

	t.Run("missing key yields zero value", func(t *testing.T) {
		v, ok := m.Load(99)
		assert.False(t, ok)
		assert.Empty(t, v)
	})
}

func TestSafeMap_DeleteAndRange(t *testing.T) {
	m := NewSafeMap[uint32, int]()
	for i := uint32(1); i <= 3; i++ {
		m.Store(i, int(i)*10)
	}
	m.Delete(2)
	m.Delete(42)

	seen := map[uint32]int{}
	m.Range(func(k uint32, v int) bool {
		seen[k] = v
		return true
	})
	assert.Equal(t, map[uint32]int{1: 10, 3: 30}, seen)

	calls := 0
	m.Range(func(uint32, int) bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
}

func TestSafeMap_Concurrent(t *testing.T) {
	m := NewSafeMap[int, int]()
	const workers = 50
	const perWorker = 200

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := range workers {
		go func(id int) {
			defer wg.Done()
			for i := range perWorker {
				key := id*perWorker + i
				m.Store(key, key)
				m.Load(key)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, workers*perWorker, m.Len())

	wg.Add(workers)
	for w := range workers {
		go func(id int) {
			defer wg.Done()
			for i := range perWorker {
				m.Delete(id*perWorker + i)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 0, m.Len())
}
