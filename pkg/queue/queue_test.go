package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	for i := 0; i < 100; i++ {
		v, ok := q.Shift()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.Shift()
	assert.False(t, ok)
}

func TestQueue_LengthAfterPushesAndShifts(t *testing.T) {
	cases := []struct{ pushes, shifts int }{
		{1, 0}, {8, 3}, {9, 9}, {33, 17}, {1000, 999},
	}
	for _, tc := range cases {
		q := New[int]()
		for i := 0; i < tc.pushes; i++ {
			q.Push(i)
		}
		for i := 0; i < tc.shifts; i++ {
			q.Shift()
		}
		assert.Equal(t, tc.pushes-tc.shifts, q.Len(), "pushes=%d shifts=%d", tc.pushes, tc.shifts)
	}
}

func TestQueue_WrapAroundKeepsOrder(t *testing.T) {
	q := New[int](WithCapacity[int](8))
	next, want := 0, 0
	// Interleave so head walks around the ring several times and growth
	// happens while the ring is wrapped.
	for round := 0; round < 50; round++ {
		for i := 0; i < 5; i++ {
			q.Push(next)
			next++
		}
		for i := 0; i < 3; i++ {
			v, ok := q.Shift()
			require.True(t, ok)
			require.Equal(t, want, v)
			want++
		}
	}
	for q.Len() > 0 {
		v, _ := q.Shift()
		require.Equal(t, want, v)
		want++
	}
	assert.Equal(t, next, want)
}

func TestQueue_GrowthDoubles(t *testing.T) {
	q := New[int]()
	assert.Equal(t, minCapacity, q.Stats().Cap)
	for i := 0; i < minCapacity+1; i++ {
		q.Push(i)
	}
	assert.Equal(t, minCapacity*2, q.Stats().Cap)
	for i := 0; i < 4*minCapacity; i++ {
		q.Push(i)
	}
	assert.Equal(t, minCapacity*8, q.Stats().Cap)
}

func TestQueue_PeekAndAt(t *testing.T) {
	q := New[string]()
	_, ok := q.Peek()
	assert.False(t, ok)

	q.Push("a")
	q.Push("b")
	q.Push("c")

	v, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 3, q.Len(), "peek must not remove")

	v, ok = q.At(2)
	require.True(t, ok)
	assert.Equal(t, "c", v)

	_, ok = q.At(3)
	assert.False(t, ok)
	_, ok = q.At(-1)
	assert.False(t, ok)
}

func TestQueue_ClearReleasesItems(t *testing.T) {
	var released []int
	q := New[int](WithRelease(func(v int) { released = append(released, v) }))
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	v, _ := q.Shift()
	assert.Equal(t, 0, v)

	q.Clear()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, []int{1, 2, 3, 4}, released, "shifted items belong to the caller")

	q.Push(42)
	v, ok := q.Shift()
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestQueue_HighWater(t *testing.T) {
	q := New[int](WithHighWater[int](3))
	assert.True(t, q.Push(1))
	assert.True(t, q.Push(2))
	assert.False(t, q.Push(3), "reaching the mark signals backpressure")
	assert.True(t, q.Backpressured())
	assert.False(t, q.Push(4), "items past the mark are still stored")
	assert.Equal(t, 4, q.Len())

	q.Shift()
	q.Shift()
	assert.False(t, q.Backpressured())
	assert.Equal(t, 4, q.Stats().Peak)
}

func TestQueue_ConcurrentProducerConsumer(t *testing.T) {
	q := New[int]()
	const n = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(i)
		}
	}()

	got := make([]int, 0, n)
	for len(got) < n {
		if v, ok := q.Shift(); ok {
			got = append(got, v)
		}
	}
	wg.Wait()

	for i, v := range got {
		require.Equal(t, i, v)
	}
}
