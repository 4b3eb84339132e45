package pkg

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()

	var (
		wg      sync.WaitGroup
		inside  = map[string]*int32{"a": new(int32), "b": new(int32)}
		overlap int32
	)

	for i := 0; i < 100; i++ {
		key := "a"
		if i%2 == 0 {
			key = "b"
		}

		wg.Add(1)
		go func(key string) {
			defer wg.Done()

			unlock := k.Lock(key)
			defer unlock()

			if atomic.AddInt32(inside[key], 1) > 1 {
				atomic.AddInt32(&overlap, 1)
			}
			atomic.AddInt32(inside[key], -1)
		}(key)
	}
	wg.Wait()

	assert.Zero(t, overlap)
	assert.Zero(t, k.size())
}
