package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name  string
		input int
		want  int
	}{
		{"small size gets minimum", 1, 1024},
		{"exactly 1024", 1024, 1024},
		{"just over 1024", 1025, 2048},
		{"exact multiple", 2048, 2048},
		{"odd number", 1500, 2048},
		{"large size", 10000, 10240},
		{"zero", 0, 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sizeClass(tt.input))
		})
	}
}

func TestPool_GetLengthAndCapacity(t *testing.T) {
	var p Pool[float32]
	for _, n := range []int{1, 1024, 1025, 40000} {
		buf := p.Get(n)
		assert.Len(t, buf, n)
		assert.GreaterOrEqual(t, cap(buf), sizeClass(n))
		p.Put(buf)
	}
}

func TestPool_GetNonPositive(t *testing.T) {
	var p Pool[int]
	assert.Nil(t, p.Get(0))
	assert.Nil(t, p.Get(-3))
}

func TestPool_ReusedBuffersAreZeroed(t *testing.T) {
	var p Pool[bool]
	buf := p.Get(2000)
	for i := range buf {
		buf[i] = true
	}
	p.Put(buf)

	// sync.Pool may or may not hand the same buffer back; either way it must be clean.
	for range 10 {
		again := p.Get(2000)
		require.Len(t, again, 2000)
		for i, v := range again {
			require.False(t, v, "index %d not zeroed", i)
		}
		p.Put(again)
	}
}

func TestPool_PutIgnoresSmallAndNil(t *testing.T) {
	var p Pool[int]
	assert.NotPanics(t, func() {
		p.Put(nil)
		p.Put(make([]int, 10))
	})
}

func TestPool_ForeignCapacity(t *testing.T) {
	var p Pool[int]
	// A slice whose capacity is not a class boundary lands in the class below.
	p.Put(make([]int, 1500))
	buf := p.Get(1024)
	assert.Len(t, buf, 1024)
}

func TestPool_Concurrent(t *testing.T) {
	var p Pool[float32]
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for range 100 {
				buf := p.Get(n)
				for i := range buf {
					buf[i] = 1
				}
				p.Put(buf)
			}
		}(1000 + g*700)
	}
	wg.Wait()
}
