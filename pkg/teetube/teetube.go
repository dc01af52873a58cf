// Package teetube mirrors every byte flowing through a duplex stream to one
// or two sinks, while remaining a correct stream usable anywhere the plain
// one is.
//
// Unlike the wirelog side channel, tee sinks participate fully: their I/O
// errors surface to the caller, and pending mirrored bytes are flushed on
// every exit path. Sinks are held by reference; closing the Tee never
// closes them.
package teetube

import (
	"errors"
	"io"

	"github.com/io-tubes/tubes/pkg/tube"
)

// Policy decides what happens to newly mirrored bytes when a queue limit is
// configured and the sink has not caught up.
type Policy int

const (
	// Grow queues without bound. This is the default: a stalled sink is a
	// resource-exhaustion risk the caller accepts explicitly by choosing it.
	Grow Policy = iota
	// Block applies the queue backpressure to the primary path: the
	// read or write that produced the bytes waits for the sink.
	Block
	// Drop discards bytes that arrive while the queue is full. Once the
	// sink catches up, mirroring resumes, so a stalled interval shows up
	// as a gap in the sink's copy.
	Drop
)

// Tee forwards reads and writes to the wrapped stream and mirrors the bytes
// that actually crossed the boundary to the read and write sinks, in order,
// with no gaps and no duplicates. Either sink may be nil.
//
// Vectored or batched writes are not specialized: mirroring already forces
// the bytes through a contiguous queue, which would defeat vector I/O, so
// everything takes the scalar path.
type Tee struct {
	inner tube.Stream

	readQ  *sinkQueue
	writeQ *sinkQueue
}

// Option configures a Tee.
type Option func(*Tee)

// WithQueueLimit bounds both mirror queues at limit bytes and sets the
// policy applied when a sink falls behind. The default is Grow with no
// limit, matching the behavior callers of the unbounded variant relied on.
func WithQueueLimit(limit int, p Policy) Option {
	return func(t *Tee) {
		for _, q := range []*sinkQueue{t.readQ, t.writeQ} {
			if q != nil {
				q.limit = limit
				q.policy = p
			}
		}
	}
}

// New wraps inner so that bytes read from it are mirrored to readSink and
// bytes written through it to writeSink.
func New(inner tube.Stream, readSink, writeSink io.Writer, opts ...Option) *Tee {
	t := &Tee{inner: inner}
	if readSink != nil {
		t.readQ = newSinkQueue(readSink)
	}
	if writeSink != nil {
		t.writeQ = newSinkQueue(writeSink)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Read reads from the wrapped stream and queues the bytes for the read sink
// before releasing them to the caller, so the sink sees every byte the
// caller sees.
func (t *Tee) Read(p []byte) (int, error) {
	if err := t.readQ.lastErr(); err != nil {
		return 0, err
	}
	n, err := t.inner.Read(p)
	if n > 0 {
		if qerr := t.readQ.enqueue(p[:n]); qerr != nil {
			return n, qerr
		}
	}
	return n, err
}

// Write writes all of p to the wrapped stream and mirrors exactly the
// accepted prefix to the write sink. Only bytes the destination durably
// accepted are reported to the caller.
func (t *Tee) Write(p []byte) (int, error) {
	if err := t.writeQ.lastErr(); err != nil {
		return 0, err
	}
	written := 0
	for written < len(p) {
		n, err := t.inner.Write(p[written:])
		if n > 0 {
			if qerr := t.writeQ.enqueue(p[written : written+n]); qerr != nil {
				return written + n, qerr
			}
			written += n
		}
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// Flush waits for the write-side mirror queue to drain, then flushes the
// wrapped stream when it buffers writes.
func (t *Tee) Flush() error {
	if err := t.writeQ.flush(); err != nil {
		return err
	}
	if f, ok := t.inner.(tube.Flusher); ok {
		return f.Flush()
	}
	return nil
}

// CloseWrite flushes the write mirror and half-closes the wrapped stream.
func (t *Tee) CloseWrite() error {
	if err := t.writeQ.flush(); err != nil {
		return err
	}
	if cw, ok := t.inner.(tube.CloseWriter); ok {
		return cw.CloseWrite()
	}
	return errors.ErrUnsupported
}

// Close flushes both mirror queues, then closes the wrapped stream. The
// sinks stay open for their owner. The flush happens on every exit path,
// even when the stream close fails.
func (t *Tee) Close() error {
	ferr := errors.Join(t.writeQ.flush(), t.readQ.flush())
	t.writeQ.stop()
	t.readQ.stop()
	var cerr error
	if c, ok := t.inner.(io.Closer); ok {
		cerr = c.Close()
	}
	if ferr != nil {
		return ferr
	}
	return cerr
}
