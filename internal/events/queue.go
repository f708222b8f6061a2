package events

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// ErrQueueClosed is returned when pushing to a closed queue
var ErrQueueClosed = errors.New("queue is closed")

// node represents an internal linked list node of the event queue.
type node struct {
	event telemetry.Event
	next  *node
}

// Queue implements a thread-safe FIFO of events with a bounded backlog. When the
// backlog is full the oldest event is discarded, so a stalled reader never blocks
// the writer. Events are always popped in the order they were pushed.
type Queue struct {
	capacity int // Maximum number of queued events

	mu      sync.Mutex
	head    *node
	tail    *node
	size    int
	dropped uint64
	closed  bool
}

// NewQueue creates a new event queue holding at most capacity events.
//
// Returns an error if capacity is not positive.
func NewQueue(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid queue capacity: %d", capacity)
	}
	return &Queue{capacity: capacity}, nil
}

// Push appends an event to the tail of the queue. It reports whether an older
// event had to be dropped to make room. Returns an error if the event is nil or
// the queue is closed.
func (q *Queue) Push(evt telemetry.Event) (dropped bool, err error) {
	if evt == nil {
		return false, fmt.Errorf("cannot push nil event")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrQueueClosed
	}

	n := &node{event: evt}
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.size++

	if q.size > q.capacity {
		q.head = q.head.next
		q.size--
		q.dropped++
		dropped = true
	}

	return dropped, nil
}

// Pop removes and returns the oldest event. ok is false when the queue is
// empty. closed is read under the same lock, so an empty and closed queue will
// never deliver another event.
func (q *Queue) Pop() (evt telemetry.Event, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == nil {
		return nil, false, q.closed
	}

	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--

	return n.event, true, q.closed
}

// Dropped returns the number of events discarded because the backlog was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close stops accepting new events. Queued events can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
