package priority

// Item is anything the ready queue can hold; the dag package's Instruction
// satisfies this.
type Item interface {
	Priority() int
}

// Queue is a map from integer priority to a FIFO of eligible items, driven
// by an embedded Generator for cross-class ordering.
type Queue[T Item] struct {
	buckets map[int][]T
	gen     *Generator
}

// NewQueue returns an empty ready queue.
func NewQueue[T Item]() *Queue[T] {
	return &Queue[T]{buckets: make(map[int][]T), gen: NewGenerator()}
}

// Enqueue appends item to its priority bucket and notifies the generator.
func (q *Queue[T]) Enqueue(item T) {
	p := item.Priority()
	q.buckets[p] = append(q.buckets[p], item)
	q.gen.NotifyPriorityExists(p)
}

// Dequeue pops the head of the first non-empty bucket the generator names,
// giving up once (hi-lo+1) distinct priorities have been tried without
// finding work. Returns the zero value and false if every bucket is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if q.IsEmpty() {
		return zero, false
	}
	lo, hi := q.gen.Range()
	maxDistinct := hi - lo + 1
	if maxDistinct < 1 {
		maxDistinct = 1
	}
	tried := make(map[int]struct{}, maxDistinct)
	for len(tried) < maxDistinct {
		p := q.gen.Next()
		tried[p] = struct{}{}
		bucket := q.buckets[p]
		if len(bucket) == 0 {
			continue
		}
		item := bucket[0]
		q.buckets[p] = bucket[1:]
		return item, true
	}
	return zero, false
}

// IsEmpty reports whether every bucket is empty.
func (q *Queue[T]) IsEmpty() bool {
	for _, b := range q.buckets {
		if len(b) > 0 {
			return false
		}
	}
	return true
}

// Len returns the total number of eligible items currently queued, across
// all priority buckets.
func (q *Queue[T]) Len() int {
	n := 0
	for _, b := range q.buckets {
		n += len(b)
	}
	return n
}
