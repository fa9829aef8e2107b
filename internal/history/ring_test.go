package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRing_PanicsOnNonPositiveSize(t *testing.T) {
	assert.Panics(t, func() { NewRing[int](0) })
	assert.Panics(t, func() { NewRing[int](-1) })
}

func TestRing_PushAndEvict(t *testing.T) {
	r := NewRing[int](3)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 3, r.Cap())
	assert.Empty(t, r.Slice())

	r.Push(1)
	r.Push(2)
	assert.Equal(t, []int{1, 2}, r.Slice())

	r.Push(3)
	r.Push(4)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{2, 3, 4}, r.Slice(), "oldest element is evicted")
	assert.Equal(t, 2, r.At(0))
	assert.Equal(t, 4, r.At(2))
}

func TestRing_Last(t *testing.T) {
	r := NewRing[string](2)
	_, ok := r.Last()
	assert.False(t, ok)

	r.Push("a")
	r.Push("b")
	r.Push("c")
	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, "c", last)
}

func TestRing_AtOutOfRange(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	assert.Panics(t, func() { r.At(1) })
	assert.Panics(t, func() { r.At(-1) })
}

func TestRing_ConcurrentPush(t *testing.T) {
	r := NewRing[int](50)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			r.Push(v)
			_ = r.Slice()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}
