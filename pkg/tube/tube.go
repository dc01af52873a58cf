// Package tube provides pwntools-style scripting operations over any duplex
// byte stream: pattern-based receives, optional per-operation timeouts,
// traffic mirroring, and an interactive console bridge.
//
// A Tube wraps any Stream and is itself a full Stream with the lookahead
// capability, so tubes nest and can be handed to anything expecting the
// contract.
package tube

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/io-tubes/tubes/pkg/delim"
	"github.com/io-tubes/tubes/pkg/lookahead"
	"github.com/io-tubes/tubes/pkg/wirelog"
)

const newline = byte('\n')

// Tube decorates a duplex stream with high-level receive/send operations.
// It exclusively owns the wrapped stream: Close tears the stream down.
// A Tube is owned by one logical operation at a time; the interactive
// bridge is the only place the read and write halves run concurrently.
type Tube struct {
	inner Stream
	src   delim.Source

	// Timeout bounds each high-level operation (Recv, RecvLine, RecvUntil,
	// SendLineAfter's receive phase). Zero means no deadline. It does not
	// apply to raw capability calls (Read, Write, Fill): at that layer
	// there is no way to tell whether an attempt belongs to the previous
	// logical operation or starts a new one.
	Timeout time.Duration

	sink   wirelog.Sink
	logged int // buffered bytes already mirrored to the sink
}

// Option configures a Tube.
type Option func(*Tube)

// WithTimeout sets the per-operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Tube) {
		t.Timeout = d
	}
}

// WithSink routes the mirror of all bytes crossing the tube boundary to s.
func WithSink(s wirelog.Sink) Option {
	return func(t *Tube) {
		t.sink = s
	}
}

// New wraps s in a Tube. If s already provides the lookahead capability
// (another Tube, or any delim.Source) it is used directly; otherwise a
// lookahead.Reader is installed over s. By default traffic is hex-dumped at
// Debug level through slog.Default; use WithSink to redirect or silence it.
func New(s Stream, opts ...Option) *Tube {
	t := &Tube{
		inner: s,
		sink:  wirelog.Slog(slog.Default()),
	}
	if src, ok := s.(delim.Source); ok {
		t.src = src
	} else {
		t.src = lookahead.New(s)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tube) deadline() time.Time {
	if t.Timeout > 0 {
		return time.Now().Add(t.Timeout)
	}
	return time.Time{}
}

// Recv performs one receive attempt and returns up to max bytes. A short
// result is normal. The result is empty with a nil error at end-of-stream
// and, if a timeout is configured, when it elapses first. The two cases are
// deliberately indistinguishable to avoid ambiguity with deliberate empty
// reads.
func (t *Tube) Recv(max int) ([]byte, error) {
	if max <= 0 {
		return nil, nil
	}
	if len(t.Buffered()) == 0 {
		if _, err := t.Fill(t.Timeout); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, lookahead.ErrFillTimeout) {
				return nil, nil
			}
			return nil, err
		}
	}
	b := t.Buffered()
	n := min(max, len(b))
	out := append([]byte(nil), b[:n]...)
	t.Discard(n)
	return out, nil
}

// RecvLine receives until a newline byte, returning it too. At end-of-stream
// the remaining bytes are returned without one.
func (t *Tube) RecvLine() ([]byte, error) {
	return t.RecvUntil([]byte{newline})
}

// RecvUntil receives the shortest sequence ending with pattern. If the
// stream ends first (or the configured timeout elapses), everything read is
// returned with a nil error; a partial match is ordinary data. Bytes after
// the pattern stay buffered for the next operation.
func (t *Tube) RecvUntil(pattern []byte) ([]byte, error) {
	table, err := delim.NewTable(pattern)
	if err != nil {
		return nil, err
	}
	return delim.ReadUntil(t, table, t.deadline())
}

// Send writes all of data and flushes.
func (t *Tube) Send(data []byte) error {
	if err := t.writeAll(data); err != nil {
		return err
	}
	return t.Flush()
}

// SendLine writes all of data plus a newline byte, then flushes.
func (t *Tube) SendLine(data []byte) error {
	if err := t.writeAll(data); err != nil {
		return err
	}
	if err := t.writeAll([]byte{newline}); err != nil {
		return err
	}
	return t.Flush()
}

// SendLineAfter receives until pattern, then sends data as a line. It
// returns the received prefix. Useful for scripted prompt/response
// interaction.
func (t *Tube) SendLineAfter(pattern, data []byte) ([]byte, error) {
	got, err := t.RecvUntil(pattern)
	if err != nil {
		return got, err
	}
	if err := t.SendLine(data); err != nil {
		return got, err
	}
	return got, nil
}

func (t *Tube) writeAll(p []byte) error {
	for len(p) > 0 {
		n, err := t.inner.Write(p)
		if n > 0 {
			t.sink.Log(wirelog.Sent, p[:n])
			p = p[n:]
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}

// Read is the raw read attempt of the contract. It drains the lookahead
// buffer before touching the source, so no bytes are reordered around
// buffered operations.
func (t *Tube) Read(p []byte) (int, error) {
	if len(t.Buffered()) == 0 {
		if _, err := t.Fill(0); err != nil {
			return 0, err
		}
	}
	b := t.Buffered()
	n := copy(p, b)
	t.Discard(n)
	return n, nil
}

// Write is the raw write attempt of the contract. Accepted bytes are
// mirrored to the sink.
func (t *Tube) Write(p []byte) (int, error) {
	n, err := t.inner.Write(p)
	if n > 0 {
		t.sink.Log(wirelog.Sent, p[:n])
	}
	return n, err
}

// Fill is the lookahead fill attempt of the contract. Newly observed bytes
// are mirrored to the sink exactly once, as soon as observed.
func (t *Tube) Fill(timeout time.Duration) (int, error) {
	n, err := t.src.Fill(timeout)
	if n > 0 {
		t.logNewBuffered()
	}
	return n, err
}

// Buffered returns the unconsumed lookahead bytes.
func (t *Tube) Buffered() []byte {
	t.logNewBuffered()
	return t.src.Buffered()
}

// Discard consumes n bytes from the front of the lookahead buffer.
func (t *Tube) Discard(n int) {
	t.src.Discard(n)
	t.logged = max(t.logged-n, 0)
}

// logNewBuffered mirrors buffered bytes past the logged watermark. The
// watermark keeps a byte from being reported twice when fills and peeks
// interleave across suspension points.
func (t *Tube) logNewBuffered() {
	b := t.src.Buffered()
	if len(b) > t.logged {
		t.sink.Log(wirelog.Received, b[t.logged:])
		t.logged = len(b)
	}
}

// Flush delegates to the wrapped stream when it buffers writes.
func (t *Tube) Flush() error {
	if f, ok := t.inner.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// CloseWrite half-closes the wrapped stream. It reports
// errors.ErrUnsupported when the stream has no half-close capability.
func (t *Tube) CloseWrite() error {
	if cw, ok := t.inner.(CloseWriter); ok {
		return cw.CloseWrite()
	}
	return errors.ErrUnsupported
}

// Close tears down the wrapped stream. Sinks supplied by reference are
// untouched; their owner shuts them down.
func (t *Tube) Close() error {
	if c, ok := t.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
