// Package ring provides a fixed-capacity circular buffer.
package ring

// Buffer holds the most recent items in a circular buffer.
// It is not safe for concurrent use.
type Buffer[T any] struct {
	items []T
	size  int
	head  int // Points to the next available slot for writing
	count int // Number of elements currently in the buffer
}

// New creates a new Buffer with the given size.
func New[T any](size int) *Buffer[T] {
	if size <= 0 {
		panic("ring buffer size must be positive")
	}
	return &Buffer[T]{
		items: make([]T, size),
		size:  size,
	}
}

// Add adds an item to the Buffer. If the buffer is full, the oldest item is
// overwritten and returned with evicted set to true.
func (rb *Buffer[T]) Add(item T) (old T, evicted bool) {
	if rb.count == rb.size {
		old, evicted = rb.items[rb.head], true
	}
	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
	return old, evicted
}

// Len returns the number of items currently held.
func (rb *Buffer[T]) Len() int {
	return rb.count
}

// Cap returns the capacity.
func (rb *Buffer[T]) Cap() int {
	return rb.size
}

// Items returns items in the order they were added, oldest first.
func (rb *Buffer[T]) Items() []T {
	result := make([]T, rb.count)
	if rb.count == 0 {
		return result
	}
	if rb.count < rb.size { // Buffer not yet full
		copy(result, rb.items[:rb.head])
		return result
	}
	// Oldest element is at rb.head
	copied := copy(result, rb.items[rb.head:])
	copy(result[copied:], rb.items[:rb.head])
	return result
}

// Last returns up to n of the most recent items, oldest first.
func (rb *Buffer[T]) Last(n int) []T {
	all := rb.Items()
	if n >= 0 && n < len(all) {
		return all[len(all)-n:]
	}
	return all
}

// Reset empties the buffer.
func (rb *Buffer[T]) Reset() {
	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.head, rb.count = 0, 0
}
