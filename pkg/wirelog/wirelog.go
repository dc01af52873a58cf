// Package wirelog is the logging boundary for bytes crossing a tube: a Sink
// accepts byte sequences tagged with the direction they travelled.
//
// Sinks on this boundary are side channels: implementations must not fail
// the operation that produced the bytes. For mirroring with full error
// propagation and backpressure, use the teetube decorator instead.
package wirelog

import (
	"bytes"
	"encoding/hex"
	"log/slog"
	"sync"
)

// Direction tags which way bytes crossed the tube boundary.
type Direction int

const (
	// Sent marks bytes written toward the remote end.
	Sent Direction = iota
	// Received marks bytes read from the remote end.
	Received
)

func (d Direction) String() string {
	if d == Sent {
		return "sent"
	}
	return "received"
}

// Sink receives the bytes that cross a stream boundary, in the order they
// crossed it in each direction. The read and write paths may call Log
// concurrently (the interactive bridge runs them in parallel), so
// implementations must be safe for that, and must not retain p.
type Sink interface {
	Log(d Direction, p []byte)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Log(Direction, []byte) {}

type slogSink struct {
	log *slog.Logger
}

// Slog returns a Sink that hex-dumps traffic to log at Debug level.
func Slog(log *slog.Logger) Sink {
	return &slogSink{log: log}
}

func (s *slogSink) Log(d Direction, p []byte) {
	if len(p) == 0 {
		return
	}
	s.log.Debug(d.String(), "bytes", len(p), "dump", "\n"+hex.Dump(p))
}

// Buffer is an in-memory Sink for tests. It accumulates each direction
// separately and is safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	sent     bytes.Buffer
	received bytes.Buffer
}

func (b *Buffer) Log(d Direction, p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d == Sent {
		b.sent.Write(p)
	} else {
		b.received.Write(p)
	}
}

// Sent returns a copy of all bytes logged with direction Sent.
func (b *Buffer) Sent() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.sent.Bytes())
}

// Received returns a copy of all bytes logged with direction Received.
func (b *Buffer) Received() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.received.Bytes())
}
