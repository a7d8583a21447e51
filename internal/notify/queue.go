package notify

import (
	"sync"

	"github.com/collectionpulse/engine/internal/model"
)

// alertQueue is a thread-safe ring buffer of pending alerts that doubles
// its capacity when full. Evaluation enqueues without ever blocking;
// workers block on Dequeue.
type alertQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []model.Alert
	head   int // read position
	tail   int // write position
	count  int
	closed bool

	totalEnqueued int64
	totalDequeued int64
}

func newAlertQueue(initialCapacity int) *alertQueue {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &alertQueue{buf: make([]model.Alert, initialCapacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds an alert. Returns false if the queue is closed.
func (q *alertQueue) Enqueue(a model.Alert) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.count == len(q.buf) {
		q.grow()
	}

	q.buf[q.tail] = a
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.totalEnqueued++

	q.cond.Signal()
	return true
}

// Dequeue blocks until an alert is available or the queue is closed and
// drained. The second return is false only in the closed-and-drained case.
func (q *alertQueue) Dequeue() (model.Alert, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		return model.Alert{}, false
	}

	a := q.buf[q.head]
	q.buf[q.head] = model.Alert{} // Clear reference for GC
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.totalDequeued++
	return a, true
}

// Close stops new enqueues. Workers drain remaining items, then Dequeue
// reports closed.
func (q *alertQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of pending alerts.
func (q *alertQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// grow doubles capacity. Must be called with the lock held.
func (q *alertQueue) grow() {
	newBuf := make([]model.Alert, len(q.buf)*2)
	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}
	q.buf = newBuf
	q.head = 0
	q.tail = q.count
}
