package ring

// Queue is a FIFO ring buffer that grows on demand.
//
// head and tail are free-running counters and the slot count is always a power
// of two, so head-tail stays correct across wraparound.
type Queue[T any] struct {
	head  uint32
	tail  uint32
	slots []T
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return int(q.head - q.tail) }

// Push appends v at the tail.
func (q *Queue[T]) Push(v T) {
	if q.Len() == len(q.slots) {
		q.grow()
	}
	q.slots[q.head&q.mask()] = v
	q.head++
}

// Pop removes and returns the head item.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.head == q.tail {
		return zero, false
	}
	i := q.tail & q.mask()
	v := q.slots[i]
	q.slots[i] = zero
	q.tail++
	return v, true
}

// Peek returns the head item without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if q.head == q.tail {
		return zero, false
	}
	return q.slots[q.tail&q.mask()], true
}

// At returns the i-th item counting from the head.
func (q *Queue[T]) At(i int) T {
	return q.slots[(q.tail+uint32(i))&q.mask()]
}

// Remove deletes the first item matching fn, keeping the order of the rest.
func (q *Queue[T]) Remove(fn func(T) bool) bool {
	n := q.Len()
	found := false
	for i := 0; i < n; i++ {
		v, _ := q.Pop()
		if !found && fn(v) {
			found = true
			continue
		}
		q.Push(v)
	}
	return found
}

// Drain pops every item in order.
func (q *Queue[T]) Drain() []T {
	out := make([]T, 0, q.Len())
	for q.Len() > 0 {
		v, _ := q.Pop()
		out = append(out, v)
	}
	return out
}

func (q *Queue[T]) mask() uint32 { return uint32(len(q.slots) - 1) }

func (q *Queue[T]) grow() {
	n := q.Len()
	size := len(q.slots) * 2
	if size == 0 {
		size = 4
	}
	slots := make([]T, size)
	for i := 0; i < n; i++ {
		slots[i] = q.At(i)
	}
	q.slots = slots
	q.tail = 0
	q.head = uint32(n)
}
