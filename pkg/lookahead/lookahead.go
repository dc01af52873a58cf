// Package lookahead provides a peek/consume buffer over an io.Reader with
// deadline-capable fills.
//
// Unlike bufio.Reader, a fill can be given a timeout: Fill returns when new
// bytes arrive, when the source ends, or when the deadline passes, whichever
// comes first. A fill that times out abandons only the wait, never the read:
// bytes produced by the in-flight source read are delivered into the buffer
// when they arrive, so nothing is lost or duplicated across timeouts.
package lookahead

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrFillTimeout is returned by Fill when the deadline passes before any new
// byte arrives. The underlying read stays in flight; a later Fill or Read
// picks up whatever it produces.
var ErrFillTimeout = errors.New("lookahead: fill timed out")

const readChunk = 4 * 1024

// Reader buffers bytes retrieved from the source but not yet consumed.
// Methods must not be called concurrently: the reader is owned by one
// logical operation at a time.
type Reader struct {
	src io.Reader

	mu      sync.Mutex
	buf     []byte // retrieved from src, not yet consumed
	err     error  // sticky source error, delivered after buf drains
	reading bool   // a source read is in flight
	wake    chan struct{}
}

// New returns a Reader buffering src.
func New(src io.Reader) *Reader {
	return &Reader{
		src:  src,
		wake: make(chan struct{}, 1),
	}
}

// Buffered returns the bytes retrieved from the source but not yet consumed.
// The slice is valid until the next call to Fill, Read, or Discard.
func (r *Reader) Buffered() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf
}

// Discard consumes n bytes from the front of the buffer. It panics if n
// exceeds the buffered length.
func (r *Reader) Discard(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.buf) {
		panic("lookahead: discard beyond buffered data")
	}
	r.buf = r.buf[:copy(r.buf, r.buf[n:])]
}

// startRead launches a source read unless one is already in flight or the
// source has already failed. Callers hold r.mu.
func (r *Reader) startRead() {
	if r.reading || r.err != nil {
		return
	}
	r.reading = true
	go func() {
		chunk := make([]byte, readChunk)
		n, err := r.src.Read(chunk)
		r.mu.Lock()
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
		}
		if err != nil {
			r.err = err
		}
		r.reading = false
		r.mu.Unlock()
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}()
}

// Fill blocks until at least one byte beyond the current buffer content is
// available and returns the number of newly arrived bytes. It returns
// (0, io.EOF) at end-of-stream, (0, err) for a source error, and
// (0, ErrFillTimeout) if timeout is positive and passes first. A timeout of
// zero or less means no deadline.
func (r *Reader) Fill(timeout time.Duration) (int, error) {
	var timer *time.Timer
	var expired <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		expired = timer.C
		defer timer.Stop()
	}

	r.mu.Lock()
	have := len(r.buf)
	for {
		if n := len(r.buf) - have; n > 0 {
			r.mu.Unlock()
			return n, nil
		}
		if r.err != nil && !r.reading {
			err := r.err
			r.mu.Unlock()
			return 0, err
		}
		r.startRead()
		r.mu.Unlock()

		select {
		case <-r.wake:
			// New data or a source error landed; re-check. A stale wakeup
			// from a previously abandoned Fill re-checks harmlessly.
		case <-expired:
			return 0, ErrFillTimeout
		}
		r.mu.Lock()
	}
}

// Read drains the buffer first and only then waits on the source. The sticky
// source error is delivered once the buffer is empty.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	if len(r.buf) == 0 && r.err == nil {
		r.mu.Unlock()
		if _, err := r.Fill(0); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		r.mu.Lock()
	}
	defer r.mu.Unlock()
	if len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, nil
	}
	n := copy(p, r.buf)
	r.buf = r.buf[:copy(r.buf, r.buf[n:])]
	return n, nil
}
