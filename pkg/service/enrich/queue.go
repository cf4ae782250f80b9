// Package enrich implements the asynchronous enrichment pipeline: the
// in-memory work queue of notes awaiting embedding and the worker pool that
// drains it.
package enrich

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zettel-lab/kasten/pkg/domain/model"
)

// Entry is a queued unit of embedding work. Entries are ephemeral: they do
// not survive a restart, and the startup reconciliation scan over
// Pending/Stale notes recreates any lost work.
type Entry struct {
	NoteID     model.NoteID
	EnqueuedAt time.Time
}

// Queue is an unbounded multi-producer queue with best-effort FIFO order.
// Producers hand entries to a forwarding goroutine that buffers internally,
// so Enqueue never stalls the request path no matter how slow the consumers
// are. Duplicate entries for the same note are harmless.
type Queue struct {
	in  chan Entry
	out chan Entry

	mu     sync.RWMutex
	closed bool
	size   atomic.Int64
}

// NewQueue creates a queue and starts its forwarding goroutine
func NewQueue() *Queue {
	q := &Queue{
		in:  make(chan Entry, 64),
		out: make(chan Entry),
	}
	go q.forward()
	return q
}

// Enqueue adds a note to the queue. Fire-and-forget: enqueueing to a closed
// queue is a silent no-op.
func (q *Queue) Enqueue(noteID model.NoteID) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return
	}
	q.size.Add(1)
	q.in <- Entry{NoteID: noteID, EnqueuedAt: time.Now().UTC()}
}

// Dequeue returns the consumer channel. It is closed after Close once all
// buffered entries have been delivered.
func (q *Queue) Dequeue() <-chan Entry {
	return q.out
}

// Len returns the number of entries waiting for a consumer
func (q *Queue) Len() int {
	return int(q.size.Load())
}

// Close stops accepting entries. Buffered entries are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.in)
	}
}

// forward shuttles entries from producers into an unbounded internal buffer
// and feeds them to consumers in arrival order.
func (q *Queue) forward() {
	var buf []Entry
	in := q.in

	for in != nil || len(buf) > 0 {
		var out chan Entry
		var head Entry
		if len(buf) > 0 {
			out = q.out
			head = buf[0]
		}

		select {
		case entry, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			buf = append(buf, entry)

		case out <- head:
			buf = buf[1:]
			q.size.Add(-1)
		}
	}

	close(q.out)
}
