package walker

import "sync"

// queue is an unbounded FIFO of package names. Workers push discovered
// externals while other workers pop, so a bounded channel could deadlock.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*entry
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(e *entry) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until an item is available. It returns false once the queue is
// closed and drained.
func (q *queue) pop() (*entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
