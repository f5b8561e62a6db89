package dispatch

import "sync"

// Queue is the unbounded in-process FIFO backlog of job ids. Push never
// blocks the caller; idle slots block in Pop on a condition variable
// instead of polling. Dequeue is an exclusive ownership transfer: each
// id comes out exactly once, so no two slots ever run the same job.
//
// Unbounded is deliberate: sustained overload grows memory rather than
// rejecting submissions. See the design notes.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ids    []string
	closed bool
}

// NewQueue creates an empty open queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an id to the backlog. It reports false once the queue
// has been closed.
func (q *Queue) Push(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.ids = append(q.ids, id)
	q.cond.Signal()
	return true
}

// Pop removes and returns the head id, blocking while the queue is
// empty and open. After Close it keeps draining the remaining backlog,
// then reports false.
func (q *Queue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.ids) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

// Len returns the current backlog depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Close stops accepting new ids and wakes every blocked Pop. Safe to
// call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
}
