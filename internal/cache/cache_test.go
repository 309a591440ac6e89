package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_LoadBeforeStore(t *testing.T) {
	var s Snapshot[map[string]int]
	v, ok := s.Load()
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestSnapshot_StoreReplaces(t *testing.T) {
	s := NewSnapshot(1)
	v, ok := s.Load()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	s.Store(2)
	v, _ = s.Load()
	assert.Equal(t, 2, v)
}

func TestSnapshot_ConcurrentReaders(t *testing.T) {
	s := NewSnapshot([]string{"a"})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			v, ok := s.Load()
			assert.True(t, ok)
			assert.NotEmpty(t, v)
		}()
		go func() {
			defer wg.Done()
			s.Store([]string{"a", "b"})
		}()
	}
	wg.Wait()
}
