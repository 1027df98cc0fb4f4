package vectorindex

import "sort"

// Scored pairs an item with its score.
type Scored[T any] struct {
	Score float64
	Item  T
}

// TopK selects the K highest-scored items from a stream using a bounded
// min-heap: O(log k) per insertion and O(k) memory, versus sorting the full
// candidate set.
type TopK[T any] struct {
	k    int
	heap []Scored[T] // min-heap on Score
}

// NewTopK creates a selector for the k best items. k must be positive.
func NewTopK[T any](k int) *TopK[T] {
	if k <= 0 {
		k = 1
	}
	return &TopK[T]{k: k, heap: make([]Scored[T], 0, k)}
}

// Add offers one scored item. Once the heap is full, an item only enters
// if it beats the current minimum, which it then replaces.
func (t *TopK[T]) Add(score float64, item T) {
	if len(t.heap) < t.k {
		t.heap = append(t.heap, Scored[T]{Score: score, Item: item})
		t.siftUp(len(t.heap) - 1)
		return
	}
	if score <= t.heap[0].Score {
		return
	}
	t.heap[0] = Scored[T]{Score: score, Item: item}
	t.siftDown(0)
}

// Len returns the number of items currently held.
func (t *TopK[T]) Len() int { return len(t.heap) }

// Min returns the lowest retained score, or 0 when empty.
func (t *TopK[T]) Min() float64 {
	if len(t.heap) == 0 {
		return 0
	}
	return t.heap[0].Score
}

// Results returns the retained items sorted by descending score.
func (t *TopK[T]) Results() []Scored[T] {
	out := make([]Scored[T], len(t.heap))
	copy(out, t.heap)
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (t *TopK[T]) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if t.heap[parent].Score <= t.heap[i].Score {
			return
		}
		t.heap[parent], t.heap[i] = t.heap[i], t.heap[parent]
		i = parent
	}
}

func (t *TopK[T]) siftDown(i int) {
	n := len(t.heap)
	for {
		smallest := i
		if l := 2*i + 1; l < n && t.heap[l].Score < t.heap[smallest].Score {
			smallest = l
		}
		if r := 2*i + 2; r < n && t.heap[r].Score < t.heap[smallest].Score {
			smallest = r
		}
		if smallest == i {
			return
		}
		t.heap[i], t.heap[smallest] = t.heap[smallest], t.heap[i]
		i = smallest
	}
}
