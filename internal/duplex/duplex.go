// Package duplex provides an in-memory pair of connected duplex streams
// with half-close, for exercising tube decorators without sockets or
// processes. Writes land in a buffer and never block, so request/response
// scripts against an echoing peer cannot deadlock; reads block until bytes
// or end-of-stream arrive.
package duplex

import (
	"io"
	"sync"
)

// pipe is one direction: an unbounded byte queue with blocking reads.
type pipe struct {
	mu    sync.Mutex
	cond  *sync.Cond
	buf   []byte
	wdone bool // write side closed: EOF after drain
	rdone bool // read side closed: writes fail
}

func newPipe() *pipe {
	p := &pipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pipe) write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wdone || p.rdone {
		return 0, io.ErrClosedPipe
	}
	p.buf = append(p.buf, b...)
	p.cond.Broadcast()
	return len(b), nil
}

func (p *pipe) read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) == 0 && !p.wdone && !p.rdone {
		p.cond.Wait()
	}
	if p.rdone {
		return 0, io.ErrClosedPipe
	}
	if len(p.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.buf)
	p.buf = p.buf[:copy(p.buf, p.buf[n:])]
	return n, nil
}

func (p *pipe) closeWrite() {
	p.mu.Lock()
	p.wdone = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *pipe) closeRead() {
	p.mu.Lock()
	p.rdone = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// End is one side of an in-memory duplex connection.
type End struct {
	in  *pipe // peer writes here, we read
	out *pipe // we write here, peer reads
}

// Pair returns two connected ends. Bytes written to one are read from the
// other, in order.
func Pair() (*End, *End) {
	a, b := newPipe(), newPipe()
	return &End{in: a, out: b}, &End{in: b, out: a}
}

func (e *End) Read(p []byte) (int, error) {
	return e.in.read(p)
}

func (e *End) Write(p []byte) (int, error) {
	return e.out.write(p)
}

// CloseWrite half-closes the connection: the peer's reader sees io.EOF
// after draining everything already written.
func (e *End) CloseWrite() error {
	e.out.closeWrite()
	return nil
}

// Close tears down both directions of this end.
func (e *End) Close() error {
	e.out.closeWrite()
	e.in.closeRead()
	return nil
}
