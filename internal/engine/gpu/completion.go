package gpu

import "time"

type completion[T any] struct {
	fence Fence
	value T
}

// CompletionQueue pairs fences with payloads and hands the payloads back
// once their fence has signaled. It is polled, typically once per frame,
// and is not safe for concurrent use.
type CompletionQueue[T any] struct {
	entries []completion[T]
}

// Push queues value until fence signals. The queue takes ownership of fence.
func (q *CompletionQueue[T]) Push(fence Fence, value T) {
	q.entries = append(q.entries, completion[T]{fence: fence, value: value})
}

// Poll calls fn for each completed entry in submission order, stopping at
// the first fence that has not signaled. It returns the number delivered.
func (q *CompletionQueue[T]) Poll(fn func(T)) int {
	n := 0
	for n < len(q.entries) && q.entries[n].fence.Signaled() {
		e := q.entries[n]
		e.fence.Destroy()
		fn(e.value)
		n++
	}
	q.drop(n)
	return n
}

// Drain waits for every queued fence and delivers all payloads. Entries
// whose fence does not signal within timeout stay queued and Drain
// returns ErrFenceTimeout.
func (q *CompletionQueue[T]) Drain(timeout time.Duration, fn func(T)) error {
	n := 0
	for n < len(q.entries) {
		e := q.entries[n]
		if !e.fence.Wait(timeout) {
			q.drop(n)
			return ErrFenceTimeout
		}
		e.fence.Destroy()
		fn(e.value)
		n++
	}
	q.drop(n)
	return nil
}

// Discard destroys every queued fence without waiting and hands each
// payload to fn. It is the cleanup path after Drain times out.
func (q *CompletionQueue[T]) Discard(fn func(T)) {
	for _, e := range q.entries {
		e.fence.Destroy()
		fn(e.value)
	}
	q.drop(len(q.entries))
}

// Len returns the number of pending entries.
func (q *CompletionQueue[T]) Len() int {
	return len(q.entries)
}

func (q *CompletionQueue[T]) drop(n int) {
	if n == 0 {
		return
	}
	rest := copy(q.entries, q.entries[n:])
	clear(q.entries[rest:])
	q.entries = q.entries[:rest]
}
