package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	ID   int
	Name string
}

func TestQueue_New(t *testing.T) {
	q := New[testItem]()
	require.NotNil(t, q)
	assert.True(t, q.Empty())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PushPop(t *testing.T) {
	q := New[testItem]()

	_, ok := q.Pop()
	assert.False(t, ok)

	assert.Equal(t, 0, q.Push(testItem{ID: 1, Name: "first"}, testItem{ID: 2, Name: "second"}))
	first, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, testItem{ID: 1, Name: "first"}, first)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_BoundedEvictsOldest(t *testing.T) {
	q := NewBounded[int](3)

	assert.Equal(t, 0, q.Push(1, 2, 3))
	assert.Equal(t, 2, q.Push(4, 5))
	assert.Equal(t, []int{3, 4, 5}, q.Drain(0))
	assert.Equal(t, uint64(2), q.Dropped())
}

func TestQueue_NegativeLimitIsUnbounded(t *testing.T) {
	q := NewBounded[int](-1)
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	assert.Equal(t, 100, q.Len())
	assert.Zero(t, q.Dropped())
}

func TestQueue_Drain(t *testing.T) {
	tests := []struct {
		name string
		max  int
		want []int
		left int
	}{
		{"all", 0, []int{1, 2, 3, 4}, 0},
		{"partial", 2, []int{1, 2}, 2},
		{"more than len", 10, []int{1, 2, 3, 4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New[int]()
			q.Push(1, 2, 3, 4)
			assert.Equal(t, tt.want, q.Drain(tt.max))
			assert.Equal(t, tt.left, q.Len())
		})
	}

	assert.Nil(t, New[int]().Drain(0))
}

func TestQueue_DrainedSliceIsIndependent(t *testing.T) {
	q := New[int]()
	q.Push(1, 2)
	got := q.Drain(1)
	q.Push(9)
	assert.Equal(t, []int{1}, got)
	assert.Equal(t, []int{2, 9}, q.Drain(0))
}

func TestQueue_Requeue(t *testing.T) {
	q := NewBounded[int](4)
	q.Push(1, 2, 3)
	batch := q.Drain(0)
	q.Push(4, 5)

	assert.Equal(t, 1, q.Requeue(batch...))
	assert.Equal(t, []int{2, 3, 4, 5}, q.Drain(0))
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestQueue_Clear(t *testing.T) {
	q := New[testItem]()
	q.Push(testItem{ID: 1}, testItem{ID: 2})
	q.Clear()
	assert.True(t, q.Empty())

	q.Push(testItem{ID: 3})
	item, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 3, item.ID)
}

func TestQueue_Concurrent(t *testing.T) {
	q := NewBounded[int](1000)
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(base*100 + i)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 1000, q.Len())
	assert.Len(t, q.Drain(0), 1000)
	assert.Zero(t, q.Dropped())
}
