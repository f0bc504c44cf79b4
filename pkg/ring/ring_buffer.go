// Package ring provides a fixed-capacity circular buffer.
package ring

// Buffer holds items in a circular buffer. When the buffer is full the
// oldest item is overwritten. Buffer is not safe for concurrent use.
type Buffer[T any] struct {
	items []T
	size  int
	head  int // Points to the next available slot for writing
	count int // Number of elements currently in the buffer
}

// New creates a new Buffer with the given capacity.
func New[T any](size int) *Buffer[T] {
	if size <= 0 {
		panic("ring buffer size must be positive")
	}
	return &Buffer[T]{
		items: make([]T, size),
		size:  size,
	}
}

// Add appends an item. It returns the evicted item and true when the
// buffer was already full.
func (b *Buffer[T]) Add(item T) (evicted T, ok bool) {
	if b.count == b.size {
		evicted, ok = b.items[b.head], true
	}
	b.items[b.head] = item
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	return evicted, ok
}

// Len returns the number of items currently held.
func (b *Buffer[T]) Len() int {
	return b.count
}

// Cap returns the capacity of the buffer.
func (b *Buffer[T]) Cap() int {
	return b.size
}

// Items returns the items in the order they were added, oldest first.
func (b *Buffer[T]) Items() []T {
	result := make([]T, b.count)
	if b.count == 0 {
		return result
	}
	if b.count < b.size { // Buffer not yet full
		copy(result, b.items[:b.head])
		return result
	}
	// Buffer is full: oldest element is at head.
	copied := copy(result, b.items[b.head:])
	copy(result[copied:], b.items[:b.head])
	return result
}

// Clear drops every item and returns how many were removed.
func (b *Buffer[T]) Clear() int {
	n := b.count
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.count = 0
	return n
}
