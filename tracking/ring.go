// Package tracking keeps per-track history for one analysis session and assigns
// track identities to detections from models that do not.
package tracking

// Ring is a bounded FIFO. Pushing onto a full ring evicts the oldest value.
type Ring[T any] struct {
	buf   []T
	start int
	n     int
}

// NewRing creates a ring holding at most capacity values (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, max(1, capacity))}
}

// Push appends v, dropping the oldest value when full.
func (r *Ring[T]) Push(v T) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of stored values.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th oldest value. It panics when i is out of range, as a
// slice index would.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.n {
		panic("tracking: ring index out of range")
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Last returns the most recent value and whether the ring is non-empty.
func (r *Ring[T]) Last() (T, bool) {
	if r.n == 0 {
		var zero T
		return zero, false
	}
	return r.At(r.n - 1), true
}

// Tail copies the most recent k values, oldest first.
func (r *Ring[T]) Tail(k int) []T {
	k = min(max(k, 0), r.n)
	out := make([]T, k)
	for i := range out {
		out[i] = r.At(r.n - k + i)
	}
	return out
}

// Values copies all values, oldest first.
func (r *Ring[T]) Values() []T {
	return r.Tail(r.n)
}

// Reset empties the ring.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start, r.n = 0, 0
}
