package teetube

import (
	"io"
	"sync"
)

// sinkQueue holds bytes accepted from the wrapped stream but not yet
// accepted by the sink, and drains them in order from a single pump
// goroutine. Bytes leave the queue only once the sink's write reports them
// consumed; under backpressure the queue grows (or blocks, or drops) per
// the configured policy. A nil *sinkQueue is a valid no-op queue.
type sinkQueue struct {
	sink io.Writer

	mu       sync.Mutex
	cond     *sync.Cond
	buf      []byte
	limit    int // 0 means unbounded
	policy   Policy
	err      error // sticky sink error
	closed   bool
	draining bool // pump is mid-write on a detached chunk
}

func newSinkQueue(sink io.Writer) *sinkQueue {
	q := &sinkQueue{sink: sink}
	q.cond = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

// pump is the queue's only writer to the sink. It detaches the whole queue
// as one chunk so later enqueues never reorder around an in-flight write.
func (q *sinkQueue) pump() {
	q.mu.Lock()
	for {
		for len(q.buf) == 0 && !q.closed && q.err == nil {
			q.cond.Wait()
		}
		if q.closed || q.err != nil {
			q.mu.Unlock()
			return
		}
		chunk := q.buf
		q.buf = nil
		q.draining = true
		q.mu.Unlock()

		_, werr := q.sink.Write(chunk)

		q.mu.Lock()
		q.draining = false
		if werr != nil {
			q.err = werr
		}
		q.cond.Broadcast()
	}
}

// lastErr reports the sticky sink error, surfaced to abort the next
// operation on the Tee.
func (q *sinkQueue) lastErr() error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// enqueue appends p for the sink per the configured policy. With Block it
// waits until the queue is below the limit before appending; with Drop it
// silently discards whatever would not fit; with Grow (or no limit) it
// always appends.
func (q *sinkQueue) enqueue(p []byte) error {
	if q == nil || len(p) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if q.limit > 0 {
		switch q.policy {
		case Block:
			for len(q.buf) >= q.limit && q.err == nil && !q.closed {
				q.cond.Wait()
			}
			if q.err != nil {
				return q.err
			}
		case Drop:
			space := q.limit - len(q.buf)
			if space <= 0 {
				return nil
			}
			if len(p) > space {
				p = p[:space]
			}
		}
	}
	q.buf = append(q.buf, p...)
	q.cond.Broadcast()
	return nil
}

// flush blocks until the sink has accepted everything queued so far, or
// the sink has failed.
func (q *sinkQueue) flush() error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.err == nil && !q.closed && (len(q.buf) > 0 || q.draining) {
		q.cond.Wait()
	}
	return q.err
}

// stop shuts the pump down. Callers flush first; bytes still queued at stop
// are abandoned.
func (q *sinkQueue) stop() {
	if q == nil {
		return
	}
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
